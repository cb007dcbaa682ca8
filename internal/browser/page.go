// Package browser provides the page-automation capability surface the
// evaluation core depends on, plus its chromedp-backed implementation and
// the Chrome bootstrap used to obtain a debuggable browser.
package browser

import (
	"context"
	"errors"
	"time"
)

// LoadState names a page readiness milestone for WaitForLoadState.
type LoadState string

const (
	// LoadNetworkIdle waits for the load event plus a quiet period with no
	// new network resource activity. Pages that poll or hold websockets may
	// never reach it; callers are expected to degrade to LoadDOMContentLoaded.
	LoadNetworkIdle LoadState = "networkidle"
	// LoadDOMContentLoaded waits for the document to finish parsing.
	LoadDOMContentLoaded LoadState = "domcontentloaded"
)

// ErrNoSuchElement is returned by element operations whose target no longer
// matches anything in the live DOM.
var ErrNoSuchElement = errors.New("browser: element not found")

// Candidate is a transient snapshot of a DOM element's identifying
// attributes, produced during queries and never persisted.
type Candidate struct {
	Tag     string `json:"tag"`
	Type    string `json:"type"`
	ID      string `json:"id"`
	Class   string `json:"class"`
	Name    string `json:"name"`
	Accept  string `json:"accept"`
	Value   string `json:"value"`
	Text    string `json:"text"`
	Visible bool   `json:"visible"`
	Hidden  bool   `json:"hidden"`
}

// Element addresses a live DOM node as the index-th match of a selector,
// together with the candidate snapshot taken when it was queried. Handles
// are only valid for the duration of the action that obtained them.
type Element struct {
	Selector string
	Index    int
	Candidate
}

// Page is the automation capability object the evaluation core is written
// against. The chromedp Session implements it for real runs; tests use a
// scripted fake. No method blocks indefinitely: every wait is bounded by the
// supplied context or an explicit timeout.
type Page interface {
	// Navigate loads a URL and waits for the document body to exist.
	Navigate(ctx context.Context, url string) error

	// Query returns a snapshot of every element matching the selector, in
	// document order. A selector matching nothing returns an empty slice,
	// not an error.
	Query(ctx context.Context, selector string) ([]Element, error)

	// WaitForSelector polls for the selector to match at least one element
	// and returns the first match, or an error on timeout.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) (Element, error)

	// WaitForLoadState waits for the given readiness milestone within the
	// timeout.
	WaitForLoadState(ctx context.Context, state LoadState, timeout time.Duration) error

	// Click dispatches a click on the element.
	Click(ctx context.Context, el Element) error

	// Fill replaces the element's value, firing input and change events.
	Fill(ctx context.Context, el Element, value string) error

	// TypeWithDelay focuses the element and sends text one key event at a
	// time with the given inter-key delay. Autocomplete widgets that bind
	// to key events rather than value changes require this over Fill.
	TypeWithDelay(ctx context.Context, el Element, text string, delay time.Duration) error

	// PressKey sends a single named key (e.g. "ArrowDown", "Enter") to the
	// focused element.
	PressKey(ctx context.Context, key string) error

	// ScrollIntoView scrolls the element into the viewport.
	ScrollIntoView(ctx context.Context, el Element) error

	// SetInputFiles assigns local file paths to a file input element.
	SetInputFiles(ctx context.Context, el Element, paths ...string) error

	// InputFiles reads back the names of the files currently selected on a
	// file input.
	InputFiles(ctx context.Context, el Element) ([]string, error)

	// InputValue reads the element's current value.
	InputValue(ctx context.Context, el Element) (string, error)

	// Evaluate runs a JavaScript expression in the page, unmarshaling the
	// result into out when out is non-nil.
	Evaluate(ctx context.Context, expression string, out any) error

	// Screenshot captures the page as a PNG.
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)

	// Content serializes the full document HTML.
	Content(ctx context.Context) (string, error)

	// BodyText returns the page's trimmed visible text content.
	BodyText(ctx context.Context) (string, error)
}
