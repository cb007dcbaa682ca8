package actions

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stapply-ai/evals/internal/browser"
	"github.com/stapply-ai/evals/internal/browser/browsertest"
	"github.com/stapply-ai/evals/internal/resolve"
)

// newTestExecutor builds an executor with all fixed delays collapsed so
// tests run instantly.
func newTestExecutor(page browser.Page, screenshotDir string) *Executor {
	return NewExecutor(page, zap.NewNop(), screenshotDir, WithoutDelays())
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestUploadFileMissingLocalFile(t *testing.T) {
	page := browsertest.New()
	e := newTestExecutor(page, "")

	out := e.UploadFile(context.Background(), "/nonexistent/resume.pdf", resolve.Hint{Selector: "#resume"})
	assert.False(t, out.OK)
	assert.Contains(t, out.Message, "File not found")
	assert.Empty(t, page.Calls(), "a missing local file must fail before any page interaction")
}

func TestUploadFileVerifiedSuccess(t *testing.T) {
	page := browsertest.New()
	page.DOM["#resume"] = []browser.Candidate{
		{Tag: "input", Type: "file", ID: "resume", Visible: true},
	}
	path := writeTempFile(t, "resume.pdf", "pdf bytes")
	e := newTestExecutor(page, "")

	out := e.UploadFile(context.Background(), path, resolve.Hint{Selector: "#resume"})
	require.True(t, out.OK)
	assert.True(t, out.Verified)
	assert.Contains(t, out.Content, "resume.pdf")
	require.Len(t, page.CallsTo("SetInputFiles"), 1)
	assert.Equal(t, []string{path}, page.Files["#resume[0]"])
}

func TestUploadFileEmptyReadbackIsFailure(t *testing.T) {
	page := browsertest.New()
	page.DOM["#resume"] = []browser.Candidate{
		{Tag: "input", Type: "file", ID: "resume", Visible: true},
	}
	page.DropFilesOnSet = true
	path := writeTempFile(t, "resume.pdf", "pdf bytes")

	e := newTestExecutor(page, "")
	out := e.UploadFile(context.Background(), path, resolve.Hint{Selector: "#resume"})
	require.False(t, out.OK, "an empty files readback is evidence the upload did not take")
	assert.Contains(t, out.Message, "no files detected")
}

func TestUploadFileReadbackErrorIsUnverifiedSuccess(t *testing.T) {
	page := browsertest.New()
	page.DOM["#resume"] = []browser.Candidate{
		{Tag: "input", Type: "file", ID: "resume", Visible: true},
	}
	page.FilesErr = errors.New("input detached")
	path := writeTempFile(t, "resume.pdf", "pdf bytes")

	e := newTestExecutor(page, "")
	out := e.UploadFile(context.Background(), path, resolve.Hint{Selector: "#resume"})
	require.True(t, out.OK, "a failed verification read is weaker evidence than an empty one")
	assert.False(t, out.Verified)
	assert.Contains(t, out.Content, "Verification failed")
}

func TestUploadFileNotFoundCapturesDiagnostics(t *testing.T) {
	page := browsertest.New()
	page.Body = "This page has plenty of visible text content, well over the fifty character gate."
	page.HTML = "<html><body>form</body></html>"
	page.PNG = []byte("png")
	dir := t.TempDir()

	e := newTestExecutor(page, dir)
	out := e.UploadFile(context.Background(), writeTempFile(t, "resume.pdf", "x"), resolve.Hint{Selector: "#missing"})
	require.False(t, out.OK)
	assert.Equal(t, "No file input element found on the page. Make sure you are on a page with a file upload form.", out.Message)

	assert.FileExists(t, filepath.Join(dir, "file_input_not_found.png"))
	assert.FileExists(t, filepath.Join(dir, "file_input_not_found.html"))
}

func TestUploadFileNotFoundSkipsDiagnosticsOnBlankPage(t *testing.T) {
	page := browsertest.New()
	page.Body = "blank"
	dir := t.TempDir()

	e := newTestExecutor(page, dir)
	out := e.UploadFile(context.Background(), writeTempFile(t, "resume.pdf", "x"), resolve.Hint{Selector: "#missing"})
	require.False(t, out.OK)

	assert.NoFileExists(t, filepath.Join(dir, "file_input_not_found.png"))
	assert.NoFileExists(t, filepath.Join(dir, "file_input_not_found.html"))
}

func TestSelectComboboxNotFound(t *testing.T) {
	page := browsertest.New()
	e := newTestExecutor(page, "")

	out := e.SelectCombobox(context.Background(), "United States", resolve.Hint{Selector: "#country"})
	assert.False(t, out.OK)
	assert.Contains(t, out.Message, "#country")
}

func TestSelectComboboxVerifiedSuccess(t *testing.T) {
	page := browsertest.New()
	page.DOM["#country"] = []browser.Candidate{
		{Tag: "input", Type: "text", ID: "country", Visible: true},
	}
	page.DOM[`[role="listbox"] [role="option"]`] = []browser.Candidate{
		{Tag: "div", Text: "United Kingdom", Visible: true},
		{Tag: "div", Text: "United States", Visible: true},
	}

	e := newTestExecutor(page, "")
	out := e.SelectCombobox(context.Background(), "United States", resolve.Hint{Selector: "#country"})
	require.True(t, out.OK)
	assert.True(t, out.Verified)
	assert.Contains(t, out.Content, "United States")

	// The first matching option in document order is clicked, plus the
	// focus click on the input itself.
	clicks := page.CallsTo("Click")
	require.Len(t, clicks, 2)
	assert.Equal(t, `[role="listbox"] [role="option"][1]`, clicks[1].Args[0])
}

func TestSelectComboboxKeyboardFallback(t *testing.T) {
	page := browsertest.New()
	page.DOM["#country"] = []browser.Candidate{
		{Tag: "input", Type: "text", ID: "country", Visible: true},
	}
	page.Errs["InputValue"] = errors.New("detached")

	e := newTestExecutor(page, "")
	out := e.SelectCombobox(context.Background(), "France", resolve.Hint{Selector: "#country"})
	require.True(t, out.OK)
	assert.False(t, out.Verified)
	assert.Contains(t, out.Content, "France")

	keys := page.CallsTo("PressKey")
	require.Len(t, keys, 2)
	assert.Equal(t, "ArrowDown", keys[0].Args[0])
	assert.Equal(t, "Enter", keys[1].Args[0])
}

func TestSelectComboboxTypesWithDelayAfterClear(t *testing.T) {
	page := browsertest.New()
	page.DOM["#role"] = []browser.Candidate{
		{Tag: "input", Type: "text", ID: "role", Visible: true},
	}
	page.DOM[`.dropdown li`] = []browser.Candidate{
		{Tag: "li", Text: "Engineering", Visible: true},
	}

	e := newTestExecutor(page, "")
	out := e.SelectCombobox(context.Background(), "Engineer", resolve.Hint{Selector: "#role"})
	require.True(t, out.OK)

	require.Len(t, page.CallsTo("Fill"), 1, "existing text is cleared before typing")
	typed := page.CallsTo("TypeWithDelay")
	require.Len(t, typed, 1)
	assert.Equal(t, "Engineer", typed[0].Args[1])
}

func TestOptionMatches(t *testing.T) {
	cases := []struct {
		name      string
		candidate browser.Candidate
		value     string
		want      bool
	}{
		{"exact text", browser.Candidate{Text: "United States"}, "united states", true},
		{"prefix text", browser.Candidate{Text: "United States of America"}, "United", true},
		{"substring text", browser.Candidate{Text: "The United States"}, "united", true},
		{"value attribute exact", browser.Candidate{Value: "US"}, "us", true},
		{"value attribute substring rejected", browser.Candidate{Value: "USA"}, "us", false},
		{"no match", browser.Candidate{Text: "Canada"}, "United", false},
		{"empty candidate", browser.Candidate{}, "United", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, optionMatches(tc.candidate, tc.value))
		})
	}
}

func TestSubstringOverlap(t *testing.T) {
	assert.True(t, substringOverlap("United States", "united"))
	assert.True(t, substringOverlap("united", "United States"))
	assert.False(t, substringOverlap("Canada", "France"))
}
