// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/stapply-ai/evals/internal/actions"
	"github.com/stapply-ai/evals/internal/agent"
	"github.com/stapply-ai/evals/internal/browser"
	"github.com/stapply-ai/evals/internal/config"
	"github.com/stapply-ai/evals/internal/observability"
	"github.com/stapply-ai/evals/internal/results"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	var (
		inputTokens  uint64
		outputTokens uint64
		resumePath   string
	)

	runCmd := &cobra.Command{
		Use:   "run <eval>",
		Short: "Runs a named evaluation against the target page and records the result",
		Long: fmt.Sprintf(
			"Runs one of the known evaluations (%v) against the configured target URL.\n"+
				"A local Chrome is launched unless --cdp-url points at an existing browser.",
			results.EvalNames()),
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so they override config file and env values.
			if err := viper.BindPFlag("agent.cloud", cmd.Flags().Lookup("cloud")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.cdp_url", cmd.Flags().Lookup("cdp-url")); err != nil {
				return err
			}
			if err := viper.BindPFlag("agent.target_url", cmd.Flags().Lookup("target-url")); err != nil {
				return err
			}
			return viper.BindPFlag("agent.model", cmd.Flags().Lookup("model"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			eval, err := results.ParseEvalName(args[0])
			if err != nil {
				return err
			}
			// Flags were bound in PreRunE; rebuild the config so they land.
			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			usage := agent.TokenUsage{InputTokens: inputTokens, OutputTokens: outputTokens}
			return runEvaluation(cmd.Context(), cfg, eval, resumePath, usage)
		},
	}

	runCmd.Flags().Bool("cloud", false, "run against a cloud browser provider instead of a local Chrome")
	runCmd.Flags().String("cdp-url", "", "attach to an existing browser via its CDP URL instead of launching one")
	runCmd.Flags().String("target-url", "", "page the evaluation runs against")
	runCmd.Flags().String("model", "", "model name recorded with the result")
	runCmd.Flags().StringVar(&resumePath, "file", "./resume.pdf", "local file uploaded by the evaluation")
	runCmd.Flags().Uint64Var(&inputTokens, "input-tokens", 0, "input token count reported by the driving agent")
	runCmd.Flags().Uint64Var(&outputTokens, "output-tokens", 0, "output token count reported by the driving agent")

	return runCmd
}

// runEvaluation executes the scripted evaluation end to end. Environment
// and bootstrap failures abort the run; action failures are recorded as a
// failed evaluation result.
func runEvaluation(ctx context.Context, cfg *config.Config, eval results.EvalName, resumePath string, usage agent.TokenUsage) error {
	logger := observability.GetLogger()
	start := time.Now()

	// Environment checks come first and are fatal: a missing API key or
	// browser cannot produce a meaningful evaluation.
	cdpURL := cfg.Browser.CDPURL
	if cfg.Agent.Cloud {
		if os.Getenv(config.CloudAPIKeyEnv) == "" {
			return fmt.Errorf("%s environment variable is required when using --cloud mode", config.CloudAPIKeyEnv)
		}
		if cdpURL == "" {
			return fmt.Errorf("--cdp-url is required in --cloud mode; pass the cloud browser's CDP endpoint")
		}
	}

	var chrome *browser.Chrome
	if cdpURL == "" {
		var err error
		chrome, err = browser.LaunchChrome(ctx, browser.ChromeOptions{
			BinaryPath:  cfg.Browser.BinaryPath,
			DebugPort:   cfg.Browser.DebugPort,
			Headless:    cfg.Browser.Headless,
			UserDataDir: cfg.Browser.UserDataDir,
		}, logger)
		if err != nil {
			return fmt.Errorf("browser bootstrap failed: %w", err)
		}
		defer chrome.Stop()
		cdpURL = fmt.Sprintf("http://127.0.0.1:%d", chrome.DebugPort)
	}

	session, cancelAlloc, err := browser.AttachOverCDP(ctx, cdpURL, logger)
	if err != nil {
		return err
	}
	defer cancelAlloc()
	defer session.Close(context.Background())

	store, err := results.NewStore(cfg.Results.Dir, logger)
	if err != nil {
		return err
	}

	ok, summary := executeScript(ctx, cfg, session, eval, resumePath, logger)
	elapsed := time.Since(start).Seconds()

	// The result is recorded on both the success and the failure path.
	status := "success"
	if !ok {
		status = "failure"
	}
	rec := results.Record{
		Eval:                 eval,
		ModelName:            cfg.Agent.Model,
		InputTokens:          usage.InputTokens,
		OutputTokens:         usage.OutputTokens,
		ExecutionTimeSeconds: elapsed,
		AdditionalData: []results.Entry{
			{Key: "status", Value: status},
			{Key: "summary", Value: summary},
			{Key: "target_url", Value: cfg.Agent.TargetURL},
		},
	}
	path, err := store.Save(rec)
	if err != nil {
		return err
	}
	if _, err := store.SaveJSON(rec); err != nil {
		return err
	}
	logger.Info("Evaluation recorded",
		zap.String("eval", string(eval)),
		zap.String("status", status),
		zap.String("path", path),
		zap.String("execution_time", results.FormatDuration(elapsed)),
	)

	if !ok {
		return fmt.Errorf("evaluation %s failed: %s", eval, summary)
	}
	return nil
}

// executeScript navigates to the target and drives the eval's tool script.
func executeScript(ctx context.Context, cfg *config.Config, session *browser.Session, eval results.EvalName, resumePath string, logger *zap.Logger) (bool, string) {
	navCtx, cancel := context.WithTimeout(ctx, cfg.Network.NavigationTimeout)
	defer cancel()
	if err := session.Navigate(navCtx, cfg.Agent.TargetURL); err != nil {
		return false, fmt.Sprintf("navigation to %s failed: %v", cfg.Agent.TargetURL, err)
	}

	exec := actions.NewExecutor(session, logger, cfg.Browser.ScreenshotDir)
	registry := agent.NewRegistry(logger)
	if err := agent.RegisterActions(registry, exec); err != nil {
		return false, err.Error()
	}

	steps, err := scriptFor(eval, resumePath)
	if err != nil {
		return false, err.Error()
	}

	runner := agent.NewScriptRunner(registry, logger)
	runCtx, cancelRun := context.WithTimeout(ctx, cfg.Network.ActionTimeout)
	defer cancelRun()
	stepResults, err := runner.Run(runCtx, steps)
	if err != nil {
		return false, err.Error()
	}
	return agent.Summarize(stepResults)
}

func marshalParams(v any) ([]byte, error) {
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
}

// scriptFor returns the ordered tool invocations for an evaluation.
func scriptFor(eval results.EvalName, resumePath string) ([]agent.Step, error) {
	uploadParams, err := marshalParams(agent.UploadFileParams{
		FilePath: resumePath,
		Selector: `input[type="file"]`,
	})
	if err != nil {
		return nil, err
	}

	switch eval {
	case results.EvalFileUpload:
		return []agent.Step{
			{Tool: "upload_file", Params: uploadParams},
		}, nil
	case results.EvalAuthApply:
		comboParams, err := marshalParams(agent.SelectComboboxParams{
			Value:    "United States",
			Selector: `input[role="combobox"]`,
		})
		if err != nil {
			return nil, err
		}
		return []agent.Step{
			{Tool: "upload_file", Params: uploadParams},
			{Tool: "select_combobox_option", Params: comboParams},
		}, nil
	default:
		return nil, fmt.Errorf("no script defined for evaluation %q", eval)
	}
}
