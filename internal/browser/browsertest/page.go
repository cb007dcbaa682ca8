// Package browsertest provides a scripted, in-memory Page implementation
// for exercising element resolution and action flows without a browser.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stapply-ai/evals/internal/browser"
)

// Call records one interaction with the fake page.
type Call struct {
	Method string
	Args   []any
}

// FakePage implements browser.Page against a static DOM described by a
// selector -> elements map. All interactions are recorded for assertions.
type FakePage struct {
	mu sync.Mutex

	// DOM maps a CSS selector to the candidates it matches.
	DOM map[string][]browser.Candidate

	// Files tracks the file names set on inputs, keyed by selector/index.
	Files map[string][]string
	// Values tracks values written into inputs, keyed by selector/index.
	Values map[string]string
	// EvalResults maps an expression to the value Evaluate writes out.
	EvalResults map[string]any

	// Body is returned by BodyText.
	Body string
	// HTML is returned by Content.
	HTML string
	// PNG is returned by Screenshot.
	PNG []byte

	// Errs forces an error for a named method, e.g. Errs["SetInputFiles"].
	Errs map[string]error

	// FilesErr forces InputFiles to fail, independent of files being set.
	FilesErr error
	// DropFilesOnSet makes SetInputFiles succeed without recording the
	// files, simulating a widget that consumes and clears the input.
	DropFilesOnSet bool

	calls []Call
}

// New returns an empty fake page.
func New() *FakePage {
	return &FakePage{
		DOM:         map[string][]browser.Candidate{},
		Files:       map[string][]string{},
		Values:      map[string]string{},
		EvalResults: map[string]any{},
		Errs:        map[string]error{},
	}
}

func key(el browser.Element) string {
	return fmt.Sprintf("%s[%d]", el.Selector, el.Index)
}

func (p *FakePage) record(method string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, Call{Method: method, Args: args})
}

// Calls returns a copy of every recorded interaction, in order.
func (p *FakePage) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// CallsTo returns the recorded interactions for one method.
func (p *FakePage) CallsTo(method string) []Call {
	var out []Call
	for _, c := range p.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Touched reports whether any mutating interaction was recorded. Queries,
// waits and reads do not count.
func (p *FakePage) Touched() bool {
	mutating := map[string]bool{
		"Click": true, "Fill": true, "TypeWithDelay": true,
		"PressKey": true, "SetInputFiles": true,
	}
	for _, c := range p.Calls() {
		if mutating[c.Method] {
			return true
		}
	}
	return false
}

func (p *FakePage) err(method string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Errs[method]
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	p.record("Navigate", url)
	return p.err("Navigate")
}

func (p *FakePage) Query(ctx context.Context, selector string) ([]browser.Element, error) {
	p.record("Query", selector)
	if err := p.err("Query"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	candidates := p.DOM[selector]
	elements := make([]browser.Element, len(candidates))
	for i, c := range candidates {
		elements[i] = browser.Element{Selector: selector, Index: i, Candidate: c}
	}
	return elements, nil
}

func (p *FakePage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (browser.Element, error) {
	p.record("WaitForSelector", selector, timeout)
	if err := p.err("WaitForSelector"); err != nil {
		return browser.Element{}, err
	}
	elements, err := p.Query(ctx, selector)
	if err != nil {
		return browser.Element{}, err
	}
	if len(elements) == 0 {
		return browser.Element{}, fmt.Errorf("timed out waiting for selector %q: %w", selector, context.DeadlineExceeded)
	}
	return elements[0], nil
}

func (p *FakePage) WaitForLoadState(ctx context.Context, state browser.LoadState, timeout time.Duration) error {
	p.record("WaitForLoadState", state, timeout)
	return p.err("WaitForLoadState-" + string(state))
}

func (p *FakePage) Click(ctx context.Context, el browser.Element) error {
	p.record("Click", key(el))
	return p.err("Click")
}

func (p *FakePage) Fill(ctx context.Context, el browser.Element, value string) error {
	p.record("Fill", key(el), value)
	if err := p.err("Fill"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Values[key(el)] = value
	return nil
}

func (p *FakePage) TypeWithDelay(ctx context.Context, el browser.Element, text string, delay time.Duration) error {
	p.record("TypeWithDelay", key(el), text, delay)
	if err := p.err("TypeWithDelay"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Values[key(el)] += text
	return nil
}

func (p *FakePage) PressKey(ctx context.Context, keyName string) error {
	p.record("PressKey", keyName)
	return p.err("PressKey")
}

func (p *FakePage) ScrollIntoView(ctx context.Context, el browser.Element) error {
	p.record("ScrollIntoView", key(el))
	return p.err("ScrollIntoView")
}

func (p *FakePage) SetInputFiles(ctx context.Context, el browser.Element, paths ...string) error {
	p.record("SetInputFiles", key(el), paths)
	if err := p.err("SetInputFiles"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.DropFilesOnSet {
		p.Files[key(el)] = append([]string(nil), paths...)
	}
	return nil
}

func (p *FakePage) InputFiles(ctx context.Context, el browser.Element) ([]string, error) {
	p.record("InputFiles", key(el))
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.FilesErr != nil {
		return nil, p.FilesErr
	}
	return p.Files[key(el)], nil
}

func (p *FakePage) InputValue(ctx context.Context, el browser.Element) (string, error) {
	p.record("InputValue", key(el))
	if err := p.err("InputValue"); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Values[key(el)], nil
}

func (p *FakePage) Evaluate(ctx context.Context, expression string, out any) error {
	p.record("Evaluate", expression)
	return p.err("Evaluate")
}

func (p *FakePage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	p.record("Screenshot", fullPage)
	if err := p.err("Screenshot"); err != nil {
		return nil, err
	}
	return p.PNG, nil
}

func (p *FakePage) Content(ctx context.Context) (string, error) {
	p.record("Content")
	if err := p.err("Content"); err != nil {
		return "", err
	}
	return p.HTML, nil
}

func (p *FakePage) BodyText(ctx context.Context) (string, error) {
	p.record("BodyText")
	if err := p.err("BodyText"); err != nil {
		return "", err
	}
	return p.Body, nil
}

var _ browser.Page = (*FakePage)(nil)
