// Package actions orchestrates full page interactions (file upload,
// combobox selection) atop element resolution: readiness waits, lazy
// content nudges, the action itself, and outcome verification.
package actions

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stapply-ai/evals/internal/browser"
	"github.com/stapply-ai/evals/internal/resolve"
)

// Outcome is the terminal result of one action invocation. Verified
// distinguishes a confirmed success from "executed but unverifiable".
type Outcome struct {
	OK       bool   `json:"ok"`
	Verified bool   `json:"verified"`
	Content  string `json:"content,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Success returns a verified success outcome.
func Success(content string) Outcome {
	return Outcome{OK: true, Verified: true, Content: content}
}

// UnverifiedSuccess returns a success whose post-condition could not be
// confirmed.
func UnverifiedSuccess(content string) Outcome {
	return Outcome{OK: true, Content: content}
}

// Failure returns a failure outcome with a human-readable message.
func Failure(format string, args ...any) Outcome {
	return Outcome{Message: fmt.Sprintf(format, args...)}
}

// timings collects every fixed delay and timeout in one place so tests can
// collapse them.
type timings struct {
	UploadNetworkIdle   time.Duration
	ComboboxNetworkIdle time.Duration
	DOMContentLoaded    time.Duration
	DynamicSettle       time.Duration
	ScrollPause         time.Duration
	TriggerReveal       time.Duration
	UploadSettle        time.Duration
	ComboboxWait        time.Duration
	FocusPause          time.Duration
	ClearPause          time.Duration
	TypeDelay           time.Duration
	DropdownPollBase    time.Duration
	KeyPause            time.Duration
	VerifyPause         time.Duration
}

func defaultTimings() timings {
	return timings{
		UploadNetworkIdle:   15 * time.Second,
		ComboboxNetworkIdle: 10 * time.Second,
		DOMContentLoaded:    5 * time.Second,
		DynamicSettle:       3 * time.Second,
		ScrollPause:         time.Second,
		TriggerReveal:       time.Second,
		UploadSettle:        time.Second,
		ComboboxWait:        5 * time.Second,
		FocusPause:          500 * time.Millisecond,
		ClearPause:          300 * time.Millisecond,
		TypeDelay:           100 * time.Millisecond,
		DropdownPollBase:    500 * time.Millisecond,
		KeyPause:            300 * time.Millisecond,
		VerifyPause:         500 * time.Millisecond,
	}
}

// dropdownSelectors is the ordered option-selector scan, most to least
// structurally specific, starting with floating-UI portal structures.
var dropdownSelectors = []string{
	`[data-floating-ui-portal] [role="listbox"] [role="option"]`,
	`[role="listbox"] [role="option"]`,
	`[id^="floating-ui-"] [role="option"]`,
	`[class*="_result_"] [role="option"]`,
	`[class*="_floatingContainer_"] [role="option"]`,
	`[role="listbox"] div[role="option"]`,
	`[aria-orientation="vertical"] [role="option"]`,
	`[role="listbox"] li`,
	`[aria-expanded="true"] + * [role="option"]`,
	`[aria-expanded="true"] + * li`,
	`.dropdown [role="option"]`,
	`.dropdown li`,
	`[data-testid*="option"]`,
	`[class*="option"]`,
	`ul li`,
	`.menu-item`,
	`[class*="dropdown"] [class*="item"]`,
}

// triggerScript nudges lazily rendered content: synthetic scroll/resize
// events plus a hover on anything that looks like an upload trigger.
const triggerScript = `(() => {
	window.dispatchEvent(new Event('scroll'));
	window.dispatchEvent(new Event('resize'));
	const candidates = document.querySelectorAll('button, div, span');
	candidates.forEach(el => {
		const text = (el.textContent || '').toLowerCase();
		if (text.includes('upload') || text.includes('file') || text.includes('resume')) {
			el.dispatchEvent(new MouseEvent('mouseover', {bubbles: true}));
		}
	});
	return true;
})()`

const iframeScript = `Array.from(document.querySelectorAll('iframe')).map(f => ({
	src: f.getAttribute('src') || '',
	name: f.getAttribute('name') || '',
	id: f.getAttribute('id') || '',
}))`

// Executor performs actions against one page. It is not safe for
// concurrent use; calls must be sequential.
type Executor struct {
	page     browser.Page
	resolver *resolve.Resolver
	diag     *Diagnostics
	log      *zap.Logger
	t        timings
}

// Option configures an Executor.
type Option func(*Executor)

// WithoutDelays collapses every fixed pause and readiness timeout to zero.
// Intended for tests against a scripted page.
func WithoutDelays() Option {
	return func(e *Executor) { e.t = timings{} }
}

// NewExecutor wires an executor around a page. screenshotDir receives
// diagnostic artifacts; empty disables capture.
func NewExecutor(page browser.Page, log *zap.Logger, screenshotDir string, opts ...Option) *Executor {
	log = log.Named("actions")
	e := &Executor{
		page:     page,
		resolver: resolve.New(log),
		diag:     NewDiagnostics(screenshotDir, log),
		log:      log,
		t:        defaultTimings(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// prepare runs the shared readiness preamble. Readiness degrades in three
// tiers: network idle, then DOM parsed, then proceed unconditionally.
// Pages polling over websockets never reach idle, so timeouts here are
// progress signals, not errors.
func (e *Executor) prepare(ctx context.Context, networkIdleTimeout time.Duration) {
	if err := e.page.WaitForLoadState(ctx, browser.LoadNetworkIdle, networkIdleTimeout); err != nil {
		e.log.Debug("Network idle wait timed out, degrading to DOM parsed.", zap.Error(err))
		if err := e.page.WaitForLoadState(ctx, browser.LoadDOMContentLoaded, e.t.DOMContentLoaded); err != nil {
			e.log.Debug("DOM parsed wait timed out, proceeding unconditionally.", zap.Error(err))
		}
	}

	e.sleep(ctx, e.t.DynamicSettle)

	if err := e.page.Evaluate(ctx, triggerScript, nil); err != nil {
		e.log.Debug("Dynamic content trigger failed.", zap.Error(err))
	}

	if err := e.page.Evaluate(ctx, "window.scrollTo(0, document.body.scrollHeight)", nil); err != nil {
		e.log.Debug("Scroll to bottom failed.", zap.Error(err))
	}
	e.sleep(ctx, e.t.ScrollPause)
	if err := e.page.Evaluate(ctx, "window.scrollTo(0, 0)", nil); err != nil {
		e.log.Debug("Scroll to top failed.", zap.Error(err))
	}
	e.sleep(ctx, e.t.ScrollPause)

	e.logIframes(ctx)
}

// logIframes records an inventory of frames that might host the target
// element. Purely diagnostic.
func (e *Executor) logIframes(ctx context.Context) {
	var frames []struct {
		Src  string `json:"src"`
		Name string `json:"name"`
		ID   string `json:"id"`
	}
	if err := e.page.Evaluate(ctx, iframeScript, &frames); err != nil {
		e.log.Debug("Iframe inventory failed.", zap.Error(err))
		return
	}
	e.log.Debug("Iframe inventory.", zap.Int("count", len(frames)))
	for i, f := range frames {
		e.log.Debug("Iframe.",
			zap.Int("index", i),
			zap.String("src", f.Src),
			zap.String("name", f.Name),
			zap.String("id", f.ID),
		)
	}
}

// UploadFile assigns a local file to the page's file input, resolved from
// the hint. A missing local file fails immediately without touching the
// page, it cannot become present by retrying.
func (e *Executor) UploadFile(ctx context.Context, path string, hint resolve.Hint) Outcome {
	info, err := os.Stat(path)
	if err != nil {
		return Failure("File not found: %s", path)
	}
	e.log.Info("Uploading file.", zap.String("path", path), zap.Int64("size_bytes", info.Size()))

	e.prepare(ctx, e.t.UploadNetworkIdle)

	el, err := e.resolver.Resolve(ctx, e.page, hint, resolve.KindFileInput)
	if err != nil {
		e.log.Warn("No file input resolved.", zap.String("selector", hint.Selector))
		e.diag.CaptureFailure(ctx, e.page, "file_input_not_found")
		return Failure("No file input element found on the page. Make sure you are on a page with a file upload form.")
	}
	e.diag.CaptureSuccess(ctx, e.page, "file_input_found")

	if err := e.page.SetInputFiles(ctx, *el, path); err != nil {
		return Failure("File upload failed: %v", err)
	}
	e.sleep(ctx, e.t.UploadSettle)

	// Verification asymmetry: an empty readback is evidence of failure, a
	// failed readback is not. Many upload widgets clear or virtualize the
	// input after processing.
	files, err := e.page.InputFiles(ctx, *el)
	if err != nil {
		e.log.Warn("Upload verification failed, reporting unverified success.", zap.Error(err))
		return UnverifiedSuccess(fmt.Sprintf(
			"File upload command executed for: %s. Verification failed but upload likely succeeded.", path))
	}
	if len(files) == 0 {
		return Failure("File upload may have failed - no files detected in input after upload attempt")
	}
	names := strings.Join(files, ", ")
	e.log.Info("File upload verified.", zap.String("files", names))
	return Success(fmt.Sprintf("File(s) uploaded successfully: %s", names))
}

// SelectCombobox types a value into an autocomplete input and selects the
// matching option from the dropdown it opens.
func (e *Executor) SelectCombobox(ctx context.Context, value string, hint resolve.Hint) Outcome {
	e.log.Info("Selecting combobox option.", zap.String("value", value), zap.String("selector", hint.Selector))

	e.prepare(ctx, e.t.ComboboxNetworkIdle)

	input, err := e.page.WaitForSelector(ctx, hint.Selector, e.t.ComboboxWait)
	if err != nil {
		return Failure("Combobox input element not found with selector: %s", hint.Selector)
	}

	if err := e.page.Click(ctx, input); err != nil {
		return Failure("Failed to interact with combobox: %s", value)
	}
	e.sleep(ctx, e.t.FocusPause)

	if err := e.page.Fill(ctx, input, ""); err != nil {
		return Failure("Failed to interact with combobox: %s", value)
	}
	e.sleep(ctx, e.t.ClearPause)

	// Typed with per-key delay: many autocomplete widgets bind to key
	// events, not value sets.
	if err := e.page.TypeWithDelay(ctx, input, value, e.t.TypeDelay); err != nil {
		return Failure("Failed to interact with combobox: %s", value)
	}

	e.waitForDropdown(ctx)
	e.detectFloatingPortal(ctx)

	optionFound := e.clickMatchingOption(ctx, value)

	if !optionFound {
		e.log.Debug("No matching dropdown option, trying keyboard navigation.")
		if err := e.page.PressKey(ctx, "ArrowDown"); err == nil {
			e.sleep(ctx, e.t.KeyPause)
			if err := e.page.PressKey(ctx, "Enter"); err == nil {
				optionFound = true
			}
		}
	}

	e.sleep(ctx, e.t.VerifyPause)

	final, err := e.page.InputValue(ctx, input)
	if err != nil {
		e.log.Debug("Combobox verification failed.", zap.Error(err))
		if optionFound {
			return UnverifiedSuccess(fmt.Sprintf("Combobox selection command executed for: %s", value))
		}
		return Failure("Failed to select combobox option: %s", value)
	}

	if final != "" && substringOverlap(final, value) {
		e.log.Info("Combobox selection verified.", zap.String("value", final))
		return Success(fmt.Sprintf("Combobox option selected successfully: %s", final))
	}
	if optionFound {
		return UnverifiedSuccess(fmt.Sprintf("Combobox option selection completed for: %s", value))
	}
	return Failure("No matching option found for: %s", value)
}

// waitForDropdown polls for listbox options with progressive backoff.
func (e *Executor) waitForDropdown(ctx context.Context) {
	for attempt := 0; attempt < 3; attempt++ {
		e.sleep(ctx, e.t.DropdownPollBase+time.Duration(attempt)*e.t.DropdownPollBase)
		options, err := e.page.Query(ctx, `[role="listbox"] [role="option"]`)
		if err == nil && len(options) > 0 {
			e.log.Debug("Dropdown appeared.", zap.Int("attempt", attempt+1))
			return
		}
	}
	e.log.Debug("Dropdown may not have appeared, continuing anyway.")
	e.sleep(ctx, e.t.DropdownPollBase)
}

func (e *Executor) detectFloatingPortal(ctx context.Context) {
	portals, err := e.page.Query(ctx, "[data-floating-ui-portal]")
	if err == nil && len(portals) > 0 {
		e.log.Debug("Detected floating UI portal.")
	}
}

// clickMatchingOption scans the ordered dropdown selectors and clicks the
// first option matching the value. The match is a relaxed OR of exact,
// prefix and substring on text (case-insensitive), or exact on the value
// attribute.
func (e *Executor) clickMatchingOption(ctx context.Context, value string) bool {
	for _, selector := range dropdownSelectors {
		options, err := e.page.Query(ctx, selector)
		if err != nil || len(options) == 0 {
			continue
		}
		e.log.Debug("Scanning dropdown options.", zap.String("selector", selector), zap.Int("count", len(options)))

		for _, option := range options {
			if !optionMatches(option.Candidate, value) {
				continue
			}
			e.log.Debug("Matching option found.", zap.String("text", option.Candidate.Text))
			if err := e.page.ScrollIntoView(ctx, option); err != nil {
				e.log.Debug("Option scroll failed.", zap.Error(err))
			}
			if err := e.page.Click(ctx, option); err != nil {
				e.log.Debug("Option click failed.", zap.Error(err))
				continue
			}
			return true
		}
	}
	return false
}

// optionMatches applies the relaxed OR match against an option candidate.
// Exact, prefix and substring checks on text all collapse to substring
// containment; they are kept distinct to mirror the documented contract.
func optionMatches(c browser.Candidate, value string) bool {
	target := strings.ToLower(value)
	text := strings.ToLower(strings.TrimSpace(c.Text))
	if text != "" && (text == target || strings.HasPrefix(text, target) || strings.Contains(text, target)) {
		return true
	}
	return c.Value != "" && strings.ToLower(c.Value) == target
}

// substringOverlap reports containment in either direction,
// case-insensitive.
func substringOverlap(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(la, lb) || strings.Contains(lb, la)
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
