package uservalidator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeLookup struct {
	exists bool
	err    error
	block  bool
}

func (f fakeLookup) Exists(ctx context.Context, _ string) (bool, error) {
	if f.block {
		<-ctx.Done()

		return false, ctx.Err()
	}

	return f.exists, f.err
}

// stuckLookup ignores the context entirely.
type stuckLookup struct {
	release chan struct{}
}

func (s stuckLookup) Exists(context.Context, string) (bool, error) {
	<-s.release

	return true, nil
}

type fakeCache map[string]bool

func (c fakeCache) Has(id string) bool { return c[id] }

func TestValidator_Validate(t *testing.T) {
	errUnreachable := errors.New("connection refused")

	tests := []struct {
		name   string
		lookup lookup
		cache  fakeCache
		want   Outcome
	}{
		{
			name:   "known user with empty cache",
			lookup: fakeLookup{exists: true},
			cache:  fakeCache{},
			want:   OutcomeUsable,
		},
		{
			name:   "known user with cached entry",
			lookup: fakeLookup{exists: true},
			cache:  fakeCache{"u1": true},
			want:   OutcomeUsable,
		},
		{
			name:   "not found overrides the cache",
			lookup: fakeLookup{exists: false},
			cache:  fakeCache{"u1": true},
			want:   OutcomeUnusable,
		},
		{
			name:   "unreachable and cached",
			lookup: fakeLookup{err: errUnreachable},
			cache:  fakeCache{"u1": true},
			want:   OutcomeUsable,
		},
		{
			name:   "unreachable and not cached",
			lookup: fakeLookup{err: errUnreachable},
			cache:  fakeCache{},
			want:   OutcomeIndeterminate,
		},
		{
			name:   "timeout and cached",
			lookup: fakeLookup{block: true},
			cache:  fakeCache{"u1": true},
			want:   OutcomeUsable,
		},
		{
			name:   "timeout and not cached",
			lookup: fakeLookup{block: true},
			cache:  fakeCache{},
			want:   OutcomeIndeterminate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New(tt.lookup, tt.cache, 20*time.Millisecond)

			assert.Equal(t, tt.want, v.Validate(context.Background(), "u1"))
		})
	}
}

func TestValidator_AbandonsLookupIgnoringDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	v := New(stuckLookup{release: release}, fakeCache{}, 20*time.Millisecond)

	start := time.Now()
	outcome := v.Validate(context.Background(), "u1")

	assert.Equal(t, OutcomeIndeterminate, outcome)
	assert.Less(t, time.Since(start), time.Second)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "usable", OutcomeUsable.String())
	assert.Equal(t, "unusable", OutcomeUnusable.String())
	assert.Equal(t, "indeterminate", OutcomeIndeterminate.String())
	assert.Equal(t, "unknown", Outcome(0).String())
}
