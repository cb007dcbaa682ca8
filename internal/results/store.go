// Package results persists evaluation run records to disk.
//
// Each evaluation gets its own subfolder under the results root. A record is
// written exactly once per run (success or error path) as a human-readable
// text report and, optionally, a JSON twin for programmatic access.
package results

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

// EvalName identifies a known evaluation scenario.
type EvalName string

const (
	EvalAuthApply  EvalName = "auth_apply"
	EvalFileUpload EvalName = "file_upload"
)

// EvalNames returns the list of recognized evaluation names.
func EvalNames() []string {
	return []string{string(EvalAuthApply), string(EvalFileUpload)}
}

// ParseEvalName normalizes and resolves an evaluation name. Hyphens are
// treated as underscores and matching is case-insensitive.
func ParseEvalName(name string) (EvalName, error) {
	norm := strings.ToLower(strings.ReplaceAll(name, "-", "_"))
	for _, candidate := range []EvalName{EvalAuthApply, EvalFileUpload} {
		if norm == string(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%q is not a recognized evaluation name", name)
}

// Entry is a single key/value pair of additional run data. Records carry an
// ordered slice of entries rather than a map so reports render data in the
// order the caller supplied it.
type Entry struct {
	Key   string
	Value any
}

// Record captures everything persisted for one evaluation run.
type Record struct {
	Eval                 EvalName
	ModelName            string
	Timestamp            time.Time
	InputTokens          uint64
	OutputTokens         uint64
	ExecutionTimeSeconds float64
	AdditionalData       []Entry
}

// orderedEntries marshals additional data as a JSON object whose keys keep
// the order the caller supplied, matching the text report.
type orderedEntries []Entry

func (o orderedEntries) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, e := range o {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		value, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(e.Value)
		if err != nil {
			return nil, err
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(value)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// Store writes evaluation records under a root directory.
// Writes are synchronous whole-file writes; two records for the same model
// within the same second target the same filename and overwrite each other,
// which is acceptable because the store is invoked once per run.
type Store struct {
	dir string
	log *zap.Logger
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results directory %s: %w", dir, err)
	}
	return &Store{dir: dir, log: logger.Named("results")}, nil
}

// Dir returns the results root directory.
func (s *Store) Dir() string { return s.dir }

// evalDir resolves (and creates) the per-evaluation subdirectory.
func (s *Store) evalDir(eval EvalName) (string, error) {
	dir := filepath.Join(s.dir, string(eval))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create eval directory %s: %w", dir, err)
	}
	return dir, nil
}

// Filename derives the record filename from the model name and timestamp,
// e.g. "gpt-4_1-mini_20240602_134217.txt". The model name is sanitized to
// alphanumerics, spaces, hyphens and underscores.
func Filename(modelName string, ts time.Time) string {
	return fmt.Sprintf("%s_%s.txt", SanitizeModelName(modelName), ts.Format("20060102_150405"))
}

// SanitizeModelName strips characters unsafe for filenames.
func SanitizeModelName(modelName string) string {
	var b strings.Builder
	for _, r := range modelName {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// FormatDuration renders a duration in seconds the way reports expect:
// seconds below one minute, minutes below one hour, hours beyond.
func FormatDuration(seconds float64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%.2f seconds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%.2f minutes", seconds/60)
	default:
		return fmt.Sprintf("%.2f hours", seconds/3600)
	}
}

// Save writes the text report for a record and returns the file path.
func (s *Store) Save(rec Record) (string, error) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	dir, err := s.evalDir(rec.Eval)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, Filename(rec.ModelName, rec.Timestamp))

	if err := os.WriteFile(path, []byte(renderText(rec)), 0o644); err != nil {
		return "", fmt.Errorf("failed to write result file: %w", err)
	}

	s.log.Info("Result saved", zap.String("path", path))
	return path, nil
}

// SaveJSON writes the structured twin of the record and returns its path.
func (s *Store) SaveJSON(rec Record) (string, error) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	dir, err := s.evalDir(rec.Eval)
	if err != nil {
		return "", err
	}
	base := Filename(rec.ModelName, rec.Timestamp)
	path := filepath.Join(dir, strings.TrimSuffix(base, ".txt")+".json")

	payload := struct {
		EvaluationName         string         `json:"evaluation_name"`
		ModelName              string         `json:"model_name"`
		Timestamp              string         `json:"timestamp"`
		Date                   string         `json:"date"`
		Time                   string         `json:"time"`
		InputTokens            uint64         `json:"input_tokens"`
		OutputTokens           uint64         `json:"output_tokens"`
		TotalTokens            uint64         `json:"total_tokens"`
		ExecutionTimeSeconds   float64        `json:"execution_time_seconds"`
		ExecutionTimeFormatted string         `json:"execution_time_formatted"`
		AdditionalData         orderedEntries `json:"additional_data"`
	}{
		EvaluationName:         string(rec.Eval),
		ModelName:              rec.ModelName,
		Timestamp:              rec.Timestamp.Format(time.RFC3339),
		Date:                   rec.Timestamp.Format("2006-01-02"),
		Time:                   rec.Timestamp.Format("15:04:05"),
		InputTokens:            rec.InputTokens,
		OutputTokens:           rec.OutputTokens,
		TotalTokens:            rec.InputTokens + rec.OutputTokens,
		ExecutionTimeSeconds:   rec.ExecutionTimeSeconds,
		ExecutionTimeFormatted: FormatDuration(rec.ExecutionTimeSeconds),
		AdditionalData:         rec.AdditionalData,
	}

	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write JSON result file: %w", err)
	}

	s.log.Info("JSON result saved", zap.String("path", path))
	return path, nil
}

// List returns the text report paths for one evaluation, or for all
// evaluations when eval is empty. The fixed timestamp format makes the
// lexicographic sort chronological as well.
func (s *Store) List(eval EvalName) ([]string, error) {
	var dirs []string
	if eval == "" {
		entries, err := os.ReadDir(s.dir)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to read results directory: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				dirs = append(dirs, filepath.Join(s.dir, e.Name()))
			}
		}
	} else {
		dir, err := s.evalDir(eval)
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, dir)
	}

	var files []string
	for _, dir := range dirs {
		matches, err := filepath.Glob(filepath.Join(dir, "*.txt"))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// Latest returns the most recent text report path, or "" when none exist.
func (s *Store) Latest(eval EvalName) (string, error) {
	files, err := s.List(eval)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", nil
	}
	return files[len(files)-1], nil
}

// renderText formats the human-readable report.
func renderText(rec Record) string {
	var b strings.Builder

	total := rec.InputTokens + rec.OutputTokens
	timeStr := FormatDuration(rec.ExecutionTimeSeconds)

	fmt.Fprintf(&b, "EVALUATION RESULT\n================\n\n")
	fmt.Fprintf(&b, "Evaluation Name: %s\n", rec.Eval)
	fmt.Fprintf(&b, "Model: %s\n", rec.ModelName)
	fmt.Fprintf(&b, "Date: %s\n", rec.Timestamp.Format("2006-01-02"))
	fmt.Fprintf(&b, "Time: %s\n", rec.Timestamp.Format("15:04:05"))
	fmt.Fprintf(&b, "Input Tokens: %s\n", groupDigits(rec.InputTokens))
	fmt.Fprintf(&b, "Output Tokens: %s\n", groupDigits(rec.OutputTokens))
	fmt.Fprintf(&b, "Total Tokens: %s\n", groupDigits(total))
	fmt.Fprintf(&b, "Execution Time: %s\n", timeStr)

	fmt.Fprintf(&b, "\nADDITIONAL DATA\n===============\n")
	if len(rec.AdditionalData) == 0 {
		b.WriteString("None\n")
	} else {
		for _, e := range rec.AdditionalData {
			writeEntry(&b, e.Key, e.Value)
		}
	}

	fmt.Fprintf(&b, "\nSUMMARY\n=======\n")
	fmt.Fprintf(&b, "Evaluation: %s\n", rec.Eval)
	fmt.Fprintf(&b, "Model: %s\n", rec.ModelName)
	fmt.Fprintf(&b, "Completed: %s\n", rec.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Performance: %s total tokens in %s\n", groupDigits(total), timeStr)

	return b.String()
}

// writeEntry renders one additional-data value: nested maps as indented
// pairs, slices as bullet lines, anything else on a single line.
func writeEntry(b *strings.Builder, key string, value any) {
	switch v := value.(type) {
	case map[string]any:
		fmt.Fprintf(b, "%s:\n", key)
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(b, "  %s: %v\n", k, v[k])
		}
	case []any:
		fmt.Fprintf(b, "%s:\n", key)
		for _, item := range v {
			fmt.Fprintf(b, "  - %v\n", item)
		}
	case []string:
		fmt.Fprintf(b, "%s:\n", key)
		for _, item := range v {
			fmt.Fprintf(b, "  - %s\n", item)
		}
	default:
		fmt.Fprintf(b, "%s: %v\n", key, value)
	}
}

// groupDigits formats an integer with thousands separators (1234567 -> "1,234,567").
func groupDigits(n uint64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
