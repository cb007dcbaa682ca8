package browser

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// ChromeOptions controls how a local Chrome process is launched.
type ChromeOptions struct {
	// BinaryPath overrides binary discovery when set.
	BinaryPath string
	// DebugPort is the remote debugging port. Defaults to 9222.
	DebugPort int
	// Headless runs the browser without a window.
	Headless bool
	// UserDataDir holds the profile. A temp dir is created when empty.
	UserDataDir string
}

// Chrome is a locally launched browser process exposing a CDP endpoint.
type Chrome struct {
	cmd       *exec.Cmd
	WSURL     string
	DebugPort int

	userDataDir string
	ownsDataDir bool
	logger      *zap.Logger
}

// chromeCandidates lists the binaries tried in order during discovery.
func chromeCandidates() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	default:
		return []string{
			"google-chrome",
			"google-chrome-stable",
			"chromium",
			"chromium-browser",
		}
	}
}

// findChrome resolves the first usable Chrome binary.
func findChrome() (string, error) {
	for _, candidate := range chromeCandidates() {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no Chrome binary found; install Google Chrome or Chromium, or set browser.binary_path")
}

// LaunchChrome starts a Chrome process with remote debugging enabled and
// waits until its CDP endpoint answers. The caller must Stop it.
func LaunchChrome(ctx context.Context, opts ChromeOptions, logger *zap.Logger) (*Chrome, error) {
	binary := opts.BinaryPath
	if binary == "" {
		var err error
		if binary, err = findChrome(); err != nil {
			return nil, err
		}
	}

	port := opts.DebugPort
	if port == 0 {
		port = 9222
	}

	dataDir := opts.UserDataDir
	ownsDataDir := false
	if dataDir == "" {
		var err error
		if dataDir, err = os.MkdirTemp("", "evals-chrome-*"); err != nil {
			return nil, fmt.Errorf("failed to create user data dir: %w", err)
		}
		ownsDataDir = true
	}

	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", port),
		"--user-data-dir=" + dataDir,
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-background-networking",
		"--disable-popup-blocking",
	}
	if opts.Headless {
		args = append(args, "--headless=new", "--disable-gpu")
	}

	log := logger.Named("chrome")
	log.Info("Launching browser.",
		zap.String("binary", binary),
		zap.Int("debug_port", port),
		zap.Bool("headless", opts.Headless),
	)

	cmd := exec.CommandContext(ctx, binary, args...)
	if err := cmd.Start(); err != nil {
		if ownsDataDir {
			os.RemoveAll(dataDir)
		}
		return nil, fmt.Errorf("failed to start Chrome: %w", err)
	}

	c := &Chrome{
		cmd:         cmd,
		DebugPort:   port,
		userDataDir: dataDir,
		ownsDataDir: ownsDataDir,
		logger:      log,
	}

	wsURL, err := waitForCDP(ctx, port, 20*time.Second)
	if err != nil {
		c.Stop()
		return nil, err
	}
	c.WSURL = wsURL

	log.Info("Browser ready.", zap.String("ws_url", wsURL))
	return c, nil
}

// waitForCDP polls the /json/version endpoint once a second until the
// browser reports its websocket debugger URL.
func waitForCDP(ctx context.Context, port int, timeout time.Duration) (string, error) {
	versionURL := fmt.Sprintf("http://127.0.0.1:%d/json/version", port)
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: 2 * time.Second}

	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, versionURL, nil)
		if err != nil {
			return "", err
		}
		resp, err := client.Do(req)
		if err == nil {
			var version struct {
				WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
			}
			decodeErr := jsoniter.NewDecoder(resp.Body).Decode(&version)
			resp.Body.Close()
			if decodeErr == nil && version.WebSocketDebuggerURL != "" {
				return version.WebSocketDebuggerURL, nil
			}
		}
		if err := sleepCtx(ctx, time.Second); err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("browser did not expose a CDP endpoint on port %d within %s", port, timeout)
}

// Stop terminates the browser process, escalating from SIGTERM to SIGKILL
// after a grace period, and removes any temp profile it owns.
func (c *Chrome) Stop() {
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Signal(syscall.SIGTERM)

		done := make(chan struct{})
		go func() {
			_, _ = c.cmd.Process.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			c.logger.Warn("Browser did not exit gracefully, killing.")
			_ = c.cmd.Process.Kill()
			<-done
		}
	}

	if c.ownsDataDir && c.userDataDir != "" {
		if err := os.RemoveAll(c.userDataDir); err != nil {
			c.logger.Warn("Failed to remove user data dir.", zap.String("dir", c.userDataDir), zap.Error(err))
		}
	}
}
