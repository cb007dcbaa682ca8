// File: internal/browser/session_internal_test.go
package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapKeyName(t *testing.T) {
	cases := []struct {
		key  string
		want string
	}{
		{"Enter", "\r"},
		{"Tab", "\t"},
		{"ArrowDown", "\ue015"},
		{"ArrowUp", "\ue013"},
		{"Escape", "\x1b"},
		{"Space", " "},
		{"a", "a"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, mapKeyName(tc.key), "key %q", tc.key)
	}
}

func TestMergeDeadlineHonorsBoundDeadline(t *testing.T) {
	deadline := time.Now().Add(time.Hour)
	bound, cancelBound := context.WithDeadline(context.Background(), deadline)
	defer cancelBound()

	merged, cancel := mergeDeadline(context.Background(), bound)
	defer cancel()

	got, ok := merged.Deadline()
	require.True(t, ok)
	assert.Equal(t, deadline, got)
}

func TestMergeDeadlineCancelPropagatesWithDeadline(t *testing.T) {
	boundBase, cancelBound := context.WithCancel(context.Background())
	bound, cancelDeadline := context.WithDeadline(boundBase, time.Now().Add(time.Hour))
	defer cancelDeadline()

	merged, cancel := mergeDeadline(context.Background(), bound)
	defer cancel()

	cancelBound()
	select {
	case <-merged.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("merged context did not observe cancellation of the bound context")
	}
	assert.ErrorIs(t, merged.Err(), context.Canceled)
}

func TestMergeDeadlineCancelPropagatesWithoutDeadline(t *testing.T) {
	bound, cancelBound := context.WithCancel(context.Background())

	merged, cancel := mergeDeadline(context.Background(), bound)
	defer cancel()

	cancelBound()
	select {
	case <-merged.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("merged context did not observe cancellation of the bound context")
	}
}
