package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/stapply-ai/evals/internal/browser"
	"github.com/stapply-ai/evals/internal/browser/browsertest"
)

func fileInput(id string, hidden bool) browser.Candidate {
	return browser.Candidate{Tag: "input", Type: "file", ID: id, Visible: !hidden, Hidden: hidden}
}

func TestResolveDirectFileInput(t *testing.T) {
	page := browsertest.New()
	page.DOM["#resume"] = []browser.Candidate{fileInput("resume", false)}

	r := New(zap.NewNop())
	el, err := r.Resolve(context.Background(), page, Hint{Selector: "#resume"}, KindFileInput)
	require.NoError(t, err)
	assert.Equal(t, "#resume", el.Selector)
	assert.Equal(t, "resume", el.Candidate.ID)
	assert.False(t, page.Touched(), "a direct match must not mutate the page")
}

func TestResolvePrefersVisibleMatch(t *testing.T) {
	page := browsertest.New()
	page.DOM["input.upload"] = []browser.Candidate{
		fileInput("ghost", true),
		fileInput("real", false),
	}

	r := New(zap.NewNop())
	el, err := r.Resolve(context.Background(), page, Hint{Selector: "input.upload"}, KindFileInput)
	require.NoError(t, err)
	assert.Equal(t, "real", el.Candidate.ID)
	assert.Equal(t, 1, el.Index)
}

func TestResolveFallsBackToFirstMatchWhenNoneVisible(t *testing.T) {
	page := browsertest.New()
	page.DOM["input.upload"] = []browser.Candidate{
		fileInput("first", true),
		fileInput("second", true),
	}

	r := New(zap.NewNop())
	el, err := r.Resolve(context.Background(), page, Hint{Selector: "input.upload"}, KindFileInput)
	require.NoError(t, err)
	assert.Equal(t, "first", el.Candidate.ID)
}

func TestResolveTriggerClickRevealsHiddenInput(t *testing.T) {
	page := browsertest.New()
	page.DOM["#upload-btn"] = []browser.Candidate{
		{Tag: "button", Text: "Upload resume", Visible: true},
	}
	page.DOM[`input[type="file"]`] = []browser.Candidate{fileInput("revealed", true)}

	r := New(zap.NewNop())
	el, err := r.Resolve(context.Background(), page, Hint{Selector: "#upload-btn"}, KindFileInput)
	require.NoError(t, err)
	assert.Equal(t, "revealed", el.Candidate.ID)
	require.Len(t, page.CallsTo("Click"), 1, "the trigger element must be clicked exactly once")
}

func TestResolveFallbackChainFindsHiddenSystemField(t *testing.T) {
	page := browsertest.New()
	page.DOM["#_systemfield_resume"] = []browser.Candidate{fileInput("_systemfield_resume", true)}

	r := New(zap.NewNop())
	el, err := r.Resolve(context.Background(), page, Hint{Selector: "#nope"}, KindFileInput)
	require.NoError(t, err)
	assert.Equal(t, "#_systemfield_resume", el.Selector)
	assert.True(t, el.Candidate.Hidden, "hidden file inputs are legitimate resolution targets")
}

func TestResolveFallbackSkipsNonFileElements(t *testing.T) {
	page := browsertest.New()
	page.DOM[`input[name*="resume"]`] = []browser.Candidate{
		{Tag: "input", Type: "text", Name: "resume_title", Visible: true},
		fileInput("resume_file", true),
	}

	r := New(zap.NewNop())
	el, err := r.Resolve(context.Background(), page, Hint{Selector: "#nope"}, KindFileInput)
	require.NoError(t, err)
	assert.Equal(t, "resume_file", el.Candidate.ID)
}

func TestResolveExplicitFallbacksScannedInOrder(t *testing.T) {
	page := browsertest.New()
	page.DOM["#second"] = []browser.Candidate{fileInput("second", false)}
	page.DOM["#third"] = []browser.Candidate{fileInput("third", false)}

	r := New(zap.NewNop())
	hint := Hint{Selector: "#nope", Fallbacks: []string{"#first", "#second", "#third"}}
	el, err := r.Resolve(context.Background(), page, hint, KindFileInput)
	require.NoError(t, err)
	assert.Equal(t, "second", el.Candidate.ID)
}

func TestResolveNotFound(t *testing.T) {
	page := browsertest.New()

	r := New(zap.NewNop())
	el, err := r.Resolve(context.Background(), page, Hint{Selector: "#missing"}, KindFileInput)
	assert.Nil(t, el)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, page.Touched(), "an empty page must not be mutated")
}

func TestResolveInteractiveControlRejectsHidden(t *testing.T) {
	page := browsertest.New()
	page.DOM["#combo"] = []browser.Candidate{
		{Tag: "input", Type: "text", ID: "combo", Hidden: true},
	}

	r := New(zap.NewNop())
	_, err := r.Resolve(context.Background(), page, Hint{Selector: "#combo"}, KindInteractiveControl)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveInteractiveControlPrefersVisibleFallbackOverHidden(t *testing.T) {
	page := browsertest.New()
	page.DOM["#country"] = []browser.Candidate{
		{Tag: "input", Type: "text", ID: "country", Hidden: true},
	}
	page.DOM[`input[name="country"]`] = []browser.Candidate{
		{Tag: "input", Type: "text", Name: "country", Hidden: true},
	}
	page.DOM["select#country-select"] = []browser.Candidate{
		{Tag: "select", ID: "country-select", Visible: true},
	}

	r := New(zap.NewNop())
	hint := Hint{Selector: "#country", Fallbacks: []string{`input[name="country"]`, "select#country-select"}}
	el, err := r.Resolve(context.Background(), page, hint, KindInteractiveControl)
	require.NoError(t, err)
	assert.Equal(t, "country-select", el.Candidate.ID, "hidden fallback matches must be passed over for a visible one")
	assert.False(t, el.Candidate.Hidden)
}

func TestResolveInteractiveControlAcceptsVisibleInput(t *testing.T) {
	page := browsertest.New()
	page.DOM["#combo"] = []browser.Candidate{
		{Tag: "input", Type: "text", ID: "combo", Visible: true},
	}

	r := New(zap.NewNop())
	el, err := r.Resolve(context.Background(), page, Hint{Selector: "#combo"}, KindInteractiveControl)
	require.NoError(t, err)
	assert.Equal(t, "combo", el.Candidate.ID)
}
