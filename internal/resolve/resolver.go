// Package resolve locates concrete DOM elements for semantic targets.
//
// Target pages are client-side rendered, so a single static selector is
// unreliable. Resolution runs a layered strategy where each layer is
// strictly more permissive than the last: primary selector, trigger click,
// then attribute-pattern fallbacks.
package resolve

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stapply-ai/evals/internal/browser"
)

// ErrNotFound reports that every resolution layer exhausted its candidates.
// It is an expected outcome the caller must handle, not a fault.
var ErrNotFound = errors.New("element not found")

// Kind selects the acceptance predicate for a resolution.
type Kind string

const (
	// KindFileInput targets <input type="file">. Hidden elements are
	// acceptable, upload inputs are routinely hidden behind styled buttons.
	KindFileInput Kind = "file_input"
	// KindInteractiveControl targets visible inputs and controls.
	KindInteractiveControl Kind = "interactive_control"
)

// Hint carries the preferred selector plus an ordered fallback sequence.
// Fallbacks are scanned in order, stopping at the first success.
type Hint struct {
	Selector  string
	Fallbacks []string
}

// fileInputFallbacks is the default fallback chain for file inputs, ordered
// from the generic file-input query through id/name/accept heuristics seen
// on real application forms.
var fileInputFallbacks = []string{
	`input[type="file"]`,
	`#_systemfield_resume`,
	`input[id*="systemfield"]`,
	`input[id*="resume"]`,
	`input[name*="file"]`,
	`input[name*="resume"]`,
	`input[name*="upload"]`,
	`input[accept*="pdf"]`,
	`input[accept*="application"]`,
	`.file-input input`,
	`[data-testid*="file"] input`,
	`[data-testid*="upload"] input`,
}

// Resolver resolves element hints against a live page.
type Resolver struct {
	log *zap.Logger
}

// New returns a Resolver logging through the given logger.
func New(log *zap.Logger) *Resolver {
	return &Resolver{log: log.Named("resolve")}
}

// Resolve returns the best live element for the hint, or ErrNotFound when
// every layer exhausts its candidates. Page-level query errors inside a
// layer degrade to the next layer rather than aborting.
func (r *Resolver) Resolve(ctx context.Context, page browser.Page, hint Hint, kind Kind) (*browser.Element, error) {
	primary, trigger := r.resolvePrimary(ctx, page, hint, kind)
	if primary != nil {
		return primary, nil
	}

	if trigger != nil {
		if el := r.resolveViaTrigger(ctx, page, *trigger, kind); el != nil {
			return el, nil
		}
	}

	fallbacks := hint.Fallbacks
	if len(fallbacks) == 0 && kind == KindFileInput {
		fallbacks = fileInputFallbacks
	}
	if el := r.resolveFallbacks(ctx, page, fallbacks, kind); el != nil {
		return el, nil
	}

	return nil, ErrNotFound
}

// resolvePrimary queries the hint selector and either accepts a direct
// match of the target kind or returns the selected candidate as a
// potential trigger element.
func (r *Resolver) resolvePrimary(ctx context.Context, page browser.Page, hint Hint, kind Kind) (match, trigger *browser.Element) {
	matches, err := page.Query(ctx, hint.Selector)
	if err != nil {
		r.log.Debug("Primary selector query failed.", zap.String("selector", hint.Selector), zap.Error(err))
		return nil, nil
	}
	if len(matches) == 0 {
		r.log.Debug("No elements matched the primary selector.", zap.String("selector", hint.Selector))
		return nil, nil
	}

	// Prefer the first visible match, else the first match unconditionally.
	selected := matches[0]
	for _, m := range matches {
		if m.Candidate.Visible {
			selected = m
			break
		}
	}
	r.log.Debug("Primary selector matched.",
		zap.String("selector", hint.Selector),
		zap.Int("matches", len(matches)),
		zap.String("tag", selected.Candidate.Tag),
		zap.Bool("visible", selected.Candidate.Visible),
	)

	if accepts(selected.Candidate, kind) {
		return &selected, nil
	}
	return nil, &selected
}

// resolveViaTrigger clicks a candidate that may materialize the real input
// and re-queries for elements of the target kind. Hidden file inputs are
// acceptable here.
func (r *Resolver) resolveViaTrigger(ctx context.Context, page browser.Page, trigger browser.Element, kind Kind) *browser.Element {
	r.log.Debug("Clicking candidate to reveal target element.",
		zap.String("tag", trigger.Candidate.Tag),
		zap.String("id", trigger.Candidate.ID),
	)
	if err := page.Click(ctx, trigger); err != nil {
		r.log.Debug("Trigger click failed.", zap.Error(err))
		return nil
	}
	sleep(ctx, time.Second)

	selector := kindSelector(kind)
	revealed, err := page.Query(ctx, selector)
	if err != nil {
		r.log.Debug("Re-query after trigger click failed.", zap.Error(err))
		return nil
	}
	for _, el := range revealed {
		if !disqualifiedByHidden(el.Candidate, kind) {
			r.log.Debug("Found target element after trigger click.", zap.Bool("hidden", el.Candidate.Hidden))
			return &el
		}
	}
	return nil
}

// resolveFallbacks scans the ordered fallback selectors, accepting the
// first element of matching kind. Selector errors skip to the next entry.
func (r *Resolver) resolveFallbacks(ctx context.Context, page browser.Page, fallbacks []string, kind Kind) *browser.Element {
	for i, selector := range fallbacks {
		matches, err := page.Query(ctx, selector)
		if err != nil {
			r.log.Debug("Fallback selector failed.", zap.Int("index", i), zap.String("selector", selector), zap.Error(err))
			continue
		}
		for _, el := range matches {
			if kind == KindFileInput {
				// File inputs match on the type attribute alone, hidden or not.
				if isFileInput(el.Candidate) {
					r.log.Debug("Found file input via fallback selector.",
						zap.String("selector", selector),
						zap.Bool("hidden", el.Candidate.Hidden),
					)
					return &el
				}
				continue
			}
			if !el.Candidate.Hidden {
				r.log.Debug("Found element via fallback selector.", zap.String("selector", selector))
				return &el
			}
		}
	}
	return nil
}

// accepts reports whether a candidate directly satisfies the kind.
func accepts(c browser.Candidate, kind Kind) bool {
	switch kind {
	case KindFileInput:
		return isFileInput(c)
	case KindInteractiveControl:
		return isInteractive(c) && !c.Hidden
	default:
		return false
	}
}

// disqualifiedByHidden reports whether hidden-state rules out a candidate.
// Hidden never disqualifies file inputs.
func disqualifiedByHidden(c browser.Candidate, kind Kind) bool {
	if kind == KindFileInput {
		return !isFileInput(c)
	}
	return c.Hidden || !isInteractive(c)
}

func isFileInput(c browser.Candidate) bool {
	return strings.EqualFold(c.Tag, "input") && strings.EqualFold(c.Type, "file")
}

func isInteractive(c browser.Candidate) bool {
	switch strings.ToLower(c.Tag) {
	case "input", "select", "textarea", "button":
		return true
	}
	return false
}

// kindSelector is the re-query selector used after a trigger click.
func kindSelector(kind Kind) string {
	if kind == KindFileInput {
		return `input[type="file"]`
	}
	return `input, select, textarea, button`
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
