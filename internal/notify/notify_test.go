package notify

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	mu       sync.Mutex
	started  []Event
	err      error
}

func (r *recordingSink) NotifyStart(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, e)
	return r.err
}
func (r *recordingSink) NotifyComplete(Event) error    { return r.err }
func (r *recordingSink) NotifyNeedsInput(Event) error  { return r.err }
func (r *recordingSink) NotifyError(Event) error       { return r.err }

func TestNotifyStart_BroadcastsToAllSinks(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	f := New([]Sink{a, b}, nil)

	f.NotifyStart(Event{IssueNumber: 1, Title: "fix bug"})

	require := assert.New(t)
	require.Len(a.started, 1)
	require.Len(b.started, 1)
	require.Equal(1, a.started[0].IssueNumber)
}

func TestNotifyStart_FailingSinkDoesNotBlockOthers(t *testing.T) {
	failing := &recordingSink{err: errors.New("boom")}
	ok := &recordingSink{}

	var gotErr error
	var mu sync.Mutex
	f := New([]Sink{failing, ok}, func(err error) {
		mu.Lock()
		defer mu.Unlock()
		gotErr = err
	})

	f.NotifyStart(Event{IssueNumber: 2})

	mu.Lock()
	defer mu.Unlock()
	assert.Error(t, gotErr)
	assert.Len(t, ok.started, 1)
}

func TestFanout_NoSinksIsNoop(t *testing.T) {
	f := New(nil, nil)
	assert.NotPanics(t, func() {
		f.NotifyComplete(Event{IssueNumber: 3})
	})
}
