package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var _ Page = (*Session)(nil)

// Session manages a single browser tab over CDP and implements Page.
// It is a single-writer resource: actions execute sequentially, never
// concurrently, though the session itself is long-lived across actions.
type Session struct {
	id     string
	logger *zap.Logger

	sessionCtx    context.Context
	sessionCancel context.CancelFunc

	isClosed bool
	mu       sync.Mutex
}

// NewSession creates a tab context derived from a chromedp allocator context.
func NewSession(allocCtx context.Context, logger *zap.Logger) (*Session, error) {
	id := uuid.New().String()
	sessionCtx, cancel := chromedp.NewContext(allocCtx)

	s := &Session{
		id:            id,
		logger:        logger.Named("session").With(zap.String("session_id", id[:8])),
		sessionCtx:    sessionCtx,
		sessionCancel: cancel,
	}

	// Confirm the tab is responsive before handing it out.
	probeCtx, cancelProbe := context.WithTimeout(sessionCtx, 30*time.Second)
	defer cancelProbe()
	if err := chromedp.Run(probeCtx, chromedp.Evaluate("1", nil)); err != nil {
		cancel()
		return nil, fmt.Errorf("browser tab failed to respond: %w", err)
	}

	s.logger.Info("Browser session initialized.")
	return s, nil
}

// AttachOverCDP connects to an already-running browser through its remote
// debugging URL and opens a session on it.
func AttachOverCDP(ctx context.Context, cdpURL string, logger *zap.Logger) (*Session, context.CancelFunc, error) {
	allocCtx, cancelAlloc := chromedp.NewRemoteAllocator(ctx, cdpURL)

	session, err := NewSession(allocCtx, logger)
	if err != nil {
		cancelAlloc()
		return nil, nil, fmt.Errorf("failed to attach over CDP at %s: %w", cdpURL, err)
	}
	return session, cancelAlloc, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Close terminates the tab. Safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	cancel := s.sessionCancel
	sessionCtx := s.sessionCtx
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	waitCtx, cancelWait := context.WithTimeout(ctx, 10*time.Second)
	defer cancelWait()
	select {
	case <-sessionCtx.Done():
		s.logger.Debug("Browser session closed.")
	case <-waitCtx.Done():
		s.logger.Warn("Deadline exceeded waiting for browser session to close.", zap.Error(waitCtx.Err()))
	}
	return nil
}

// run executes chromedp actions on the session tab, bounded by the caller's
// context.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return fmt.Errorf("session is closed")
	}
	sessionCtx := s.sessionCtx
	s.mu.Unlock()

	runCtx, cancel := mergeDeadline(sessionCtx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// mergeDeadline derives a context from base that also honors the deadline
// and cancellation of bound.
func mergeDeadline(base, bound context.Context) (context.Context, context.CancelFunc) {
	var ctx context.Context
	var cancel context.CancelFunc
	if deadline, ok := bound.Deadline(); ok {
		ctx, cancel = context.WithDeadline(base, deadline)
	} else {
		ctx, cancel = context.WithCancel(base)
	}
	stop := context.AfterFunc(bound, cancel)
	return ctx, func() { stop(); cancel() }
}

// Navigate loads a URL and waits for the body to be ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))
	return s.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Query snapshots every element matching the selector. A selector with no
// matches yields an empty slice, not an error.
func (s *Session) Query(ctx context.Context, selector string) ([]Element, error) {
	var candidates []Candidate
	if err := s.run(ctx, chromedp.Evaluate(queryScript(selector), &candidates)); err != nil {
		return nil, fmt.Errorf("query %q failed: %w", selector, err)
	}

	elements := make([]Element, len(candidates))
	for i, c := range candidates {
		elements[i] = Element{Selector: selector, Index: i, Candidate: c}
	}
	return elements, nil
}

// WaitForSelector polls until the selector matches, or the timeout elapses.
func (s *Session) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		elements, err := s.Query(waitCtx, selector)
		if err == nil && len(elements) > 0 {
			return elements[0], nil
		}
		select {
		case <-waitCtx.Done():
			return Element{}, fmt.Errorf("timed out waiting for selector %q: %w", selector, waitCtx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// WaitForLoadState waits for a readiness milestone. Network idle is
// approximated over CDP as the load event plus a 500ms window with no new
// performance resource entries.
func (s *Session) WaitForLoadState(ctx context.Context, state LoadState, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastResources int
	var stableSince time.Time

	for {
		switch state {
		case LoadDOMContentLoaded:
			var readyState string
			if err := s.run(waitCtx, chromedp.Evaluate("document.readyState", &readyState)); err == nil && readyState != "loading" {
				return nil
			}
		case LoadNetworkIdle:
			var status struct {
				ReadyState string `json:"readyState"`
				Resources  int    `json:"resources"`
			}
			err := s.run(waitCtx, chromedp.Evaluate(
				`({readyState: document.readyState, resources: performance.getEntriesByType('resource').length})`,
				&status,
			))
			if err == nil && status.ReadyState == "complete" {
				if status.Resources == lastResources && !stableSince.IsZero() {
					if time.Since(stableSince) >= 500*time.Millisecond {
						return nil
					}
				} else {
					lastResources = status.Resources
					stableSince = time.Now()
				}
			} else {
				stableSince = time.Time{}
			}
		default:
			return fmt.Errorf("unknown load state %q", state)
		}

		select {
		case <-waitCtx.Done():
			return fmt.Errorf("timed out waiting for %s: %w", state, waitCtx.Err())
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// Click dispatches a click on the element after scrolling it into view.
func (s *Session) Click(ctx context.Context, el Element) error {
	return s.evalElement(ctx, el, `el.scrollIntoView({block: 'center'}); el.click(); true`, nil)
}

// Fill replaces the element's value through the native setter so framework
// bindings observe the change.
func (s *Session) Fill(ctx context.Context, el Element, value string) error {
	script := fmt.Sprintf(`
		el.focus();
		const setter = Object.getOwnPropertyDescriptor(window.HTMLInputElement.prototype, 'value');
		if (setter && setter.set) { setter.set.call(el, %s); } else { el.value = %s; }
		el.dispatchEvent(new Event('input', {bubbles: true}));
		el.dispatchEvent(new Event('change', {bubbles: true}));
		true`, jsString(value), jsString(value))
	return s.evalElement(ctx, el, script, nil)
}

// TypeWithDelay focuses the element and sends real key events one at a time.
func (s *Session) TypeWithDelay(ctx context.Context, el Element, text string, delay time.Duration) error {
	if err := s.evalElement(ctx, el, `el.focus(); true`, nil); err != nil {
		return err
	}
	for _, r := range text {
		if err := s.run(ctx, chromedp.KeyEvent(string(r))); err != nil {
			return fmt.Errorf("failed to send key %q: %w", r, err)
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

// PressKey sends a single named key to the focused element.
func (s *Session) PressKey(ctx context.Context, key string) error {
	return s.run(ctx, chromedp.KeyEvent(mapKeyName(key)))
}

// ScrollIntoView centers the element in the viewport.
func (s *Session) ScrollIntoView(ctx context.Context, el Element) error {
	return s.evalElement(ctx, el, `el.scrollIntoView({block: 'center'}); true`, nil)
}

// SetInputFiles assigns local files to a file input via the DOM domain.
// This works on hidden inputs, which upload widgets routinely use.
func (s *Session) SetInputFiles(ctx context.Context, el Element, paths ...string) error {
	return s.run(ctx, chromedp.ActionFunc(func(cctx context.Context) error {
		var nodes []*cdp.Node
		if err := chromedp.Nodes(el.Selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)).Do(cctx); err != nil {
			return err
		}
		if el.Index >= len(nodes) {
			return ErrNoSuchElement
		}
		return dom.SetFileInputFiles(paths).WithNodeID(nodes[el.Index].NodeID).Do(cctx)
	}))
}

// InputFiles reads back the file names currently set on a file input.
func (s *Session) InputFiles(ctx context.Context, el Element) ([]string, error) {
	var names []string
	err := s.evalElement(ctx, el, `el.files ? Array.from(el.files).map(f => f.name) : []`, &names)
	return names, err
}

// InputValue reads the element's current value.
func (s *Session) InputValue(ctx context.Context, el Element) (string, error) {
	var value string
	err := s.evalElement(ctx, el, `el.value || ''`, &value)
	return value, err
}

// Evaluate runs an arbitrary expression in the page.
func (s *Session) Evaluate(ctx context.Context, expression string, out any) error {
	return s.run(ctx, chromedp.Evaluate(expression, out))
}

// Screenshot captures the page as PNG bytes.
func (s *Session) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	var buf []byte
	var action chromedp.Action
	if fullPage {
		action = chromedp.FullScreenshot(&buf, 90)
	} else {
		action = chromedp.CaptureScreenshot(&buf)
	}
	if err := s.run(ctx, action); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

// Content serializes the document HTML.
func (s *Session) Content(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to serialize page content: %w", err)
	}
	return html, nil
}

// BodyText returns the page's trimmed visible text.
func (s *Session) BodyText(ctx context.Context) (string, error) {
	var text string
	if err := s.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText.trim() : ''`, &text)); err != nil {
		return "", err
	}
	return text, nil
}

// evalElement runs a script with `el` bound to the element's live node.
// The script must yield a JSON-serializable value.
func (s *Session) evalElement(ctx context.Context, el Element, body string, out any) error {
	script := fmt.Sprintf(`(() => {
		const el = document.querySelectorAll(%s)[%d];
		if (!el) { throw new Error('element not found: ' + %s); }
		return (() => { %s })();
	})()`, jsString(el.Selector), el.Index, jsString(el.Selector), wrapReturn(body))

	if err := s.run(ctx, chromedp.Evaluate(script, out)); err != nil {
		if strings.Contains(err.Error(), "element not found") {
			return ErrNoSuchElement
		}
		return err
	}
	return nil
}

// wrapReturn turns a statement list whose trailing expression is the result
// into a returnable function body.
func wrapReturn(body string) string {
	body = strings.TrimSpace(body)
	idx := strings.LastIndex(body, ";")
	if idx < 0 {
		return "return " + body + ";"
	}
	return body[:idx+1] + " return " + strings.TrimSpace(body[idx+1:]) + ";"
}

// queryScript builds the candidate-snapshot expression for a selector.
// Visibility follows rendered layout signals, not just CSS display. An
// element with no box or with hidden visibility is reported hidden even
// when it exists in the DOM.
func queryScript(selector string) string {
	return fmt.Sprintf(`(() => {
		const nodes = Array.from(document.querySelectorAll(%s));
		return nodes.map(el => {
			const style = window.getComputedStyle(el);
			const rect = el.getBoundingClientRect();
			const visible = !!(rect.width || rect.height)
				&& style.visibility !== 'hidden'
				&& style.display !== 'none';
			return {
				tag: el.tagName.toLowerCase(),
				type: el.getAttribute('type') || '',
				id: el.id || '',
				class: typeof el.className === 'string' ? el.className : '',
				name: el.getAttribute('name') || '',
				accept: el.getAttribute('accept') || '',
				value: el.getAttribute('value') || '',
				text: (el.textContent || '').trim().slice(0, 200),
				visible: visible,
				hidden: !visible,
			};
		});
	})()`, jsString(selector))
}

// jsString renders a Go string as a safe JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// mapKeyName translates friendly key names into the raw key strings the
// chromedp input layer expects.
func mapKeyName(key string) string {
	keyMap := map[string]string{
		"Enter":      "\r",
		"Tab":        "\t",
		"Backspace":  "\b",
		"Escape":     "\x1b",
		"ArrowUp":    "\ue013",
		"ArrowDown":  "\ue015",
		"ArrowLeft":  "\ue012",
		"ArrowRight": "\ue014",
		"Delete":     "\ue017",
		"Home":       "\ue011",
		"End":        "\ue010",
		"PageUp":     "\ue00e",
		"PageDown":   "\ue00f",
		"Space":      " ",
	}
	if v, ok := keyMap[key]; ok {
		return v
	}
	return key
}

// sleepCtx pauses without outliving the context.
func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
