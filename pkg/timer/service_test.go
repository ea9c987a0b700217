package timer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	fired []Payload
	ch    chan Payload
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan Payload, 16)}
}

func (r *recorder) handle(p Payload, _ time.Time) {
	r.mu.Lock()
	r.fired = append(r.fired, p)
	r.mu.Unlock()
	r.ch <- p
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

func TestService_FiresDueTimer(t *testing.T) {
	rec := newRecorder()
	s := NewService(rec.handle, WithSweep(""))

	p := Payload{AlarmUID: "a", NotificationID: 1}
	require.NoError(t, s.ScheduleOnce(1, time.Now().Add(-time.Second), p))

	select {
	case got := <-rec.ch:
		assert.Equal(t, p, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	assert.False(t, s.Has(1))
}

func TestService_ReplaceAndCancel(t *testing.T) {
	rec := newRecorder()
	s := NewService(rec.handle, WithSweep(""))
	far := time.Now().Add(time.Hour)

	require.NoError(t, s.ScheduleOnce(1, far, Payload{AlarmUID: "a", NotificationID: 1}))
	require.NoError(t, s.ScheduleOnce(1, far.Add(time.Minute), Payload{AlarmUID: "b", NotificationID: 1}))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, "b", s.Pending()[0].Payload.AlarmUID)
	owner, ok := s.Owner(1)
	assert.True(t, ok)
	assert.Equal(t, "b", owner)

	assert.True(t, s.Cancel(1))
	assert.False(t, s.Cancel(1))
	assert.Equal(t, 0, s.Len())
	_, ok = s.Owner(1)
	assert.False(t, ok)
}

func TestService_CancelledTimerNeverFires(t *testing.T) {
	rec := newRecorder()
	s := NewService(rec.handle, WithSweep(""))

	require.NoError(t, s.ScheduleOnce(1, time.Now().Add(50*time.Millisecond), Payload{AlarmUID: "a", NotificationID: 1}))
	s.Cancel(1)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 0, rec.count())
}

func TestService_SweepFiresOverdueInOrder(t *testing.T) {
	base := time.Now().Add(time.Hour)
	rec := newRecorder()
	s := NewService(rec.handle, WithSweep(""))

	require.NoError(t, s.ScheduleOnce(2, base.Add(2*time.Minute), Payload{AlarmUID: "late", NotificationID: 2}))
	require.NoError(t, s.ScheduleOnce(1, base.Add(time.Minute), Payload{AlarmUID: "early", NotificationID: 1}))
	require.NoError(t, s.ScheduleOnce(3, base.Add(time.Hour), Payload{AlarmUID: "future", NotificationID: 3}))

	n := s.Sweep(base.Add(5 * time.Minute))
	assert.Equal(t, 2, n)
	assert.Equal(t, []Payload{
		{AlarmUID: "early", NotificationID: 1},
		{AlarmUID: "late", NotificationID: 2},
	}, rec.fired)
	assert.True(t, s.Has(3))
}

func TestService_RejectsInvalidTimers(t *testing.T) {
	s := NewService(nil, WithSweep(""))
	assert.Error(t, s.ScheduleOnce(0, time.Now(), Payload{AlarmUID: "a"}))
	assert.Error(t, s.ScheduleOnce(1, time.Now(), Payload{}))
}

func TestService_PendingIsSorted(t *testing.T) {
	s := NewService(nil, WithSweep(""))
	base := time.Now().Add(time.Hour)
	require.NoError(t, s.ScheduleOnce(1, base.Add(3*time.Minute), Payload{AlarmUID: "c", NotificationID: 1}))
	require.NoError(t, s.ScheduleOnce(2, base, Payload{AlarmUID: "a", NotificationID: 2}))
	require.NoError(t, s.ScheduleOnce(3, base.Add(time.Minute), Payload{AlarmUID: "b", NotificationID: 3}))

	var uids []string
	for _, e := range s.Pending() {
		uids = append(uids, e.Payload.AlarmUID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, uids)
}

func TestService_RunSweepsWithClock(t *testing.T) {
	rec := newRecorder()
	future := time.Now().Add(time.Hour)

	var mu sync.Mutex
	clock := time.Now()
	s := NewService(rec.handle,
		WithSweep("@every 1s"),
		WithClock(func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return clock
		}),
	)
	require.NoError(t, s.ScheduleOnce(7, future, Payload{AlarmUID: "a", NotificationID: 7}))

	// wall clock jumps past the timer, as after a suspend
	mu.Lock()
	clock = future.Add(time.Minute)
	mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case got := <-rec.ch:
		assert.Equal(t, "a", got.AlarmUID)
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not fire overdue timer")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestService_RunRejectsBadSpec(t *testing.T) {
	s := NewService(nil, WithSweep("not a spec"))
	assert.Error(t, s.Run(context.Background()))
}
