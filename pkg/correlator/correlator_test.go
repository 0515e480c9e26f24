package correlator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

const testPrefix = "correlator:correlator_test"

// manualTimers is a Scheduler whose timers only fire when the test says so.
type manualTimers struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	after   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (m *manualTimers) schedule(d time.Duration, f func()) func() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{after: d, fn: f}
	m.timers = append(m.timers, t)
	return func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		if t.stopped || t.fired {
			return false
		}
		t.stopped = true
		return true
	}
}

// fire runs timer i as the runtime would, even if it was stopped too late.
func (m *manualTimers) fire(i int) {
	m.mu.Lock()
	t := m.timers[i]
	t.fired = true
	m.mu.Unlock()
	t.fn()
}

func (m *manualTimers) get(i int) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timers[i]
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("req-%d", n)
	}
}

func awaitNow(t *testing.T, f *Future) (json.RawMessage, error) {
	t.Helper()
	select {
	case <-f.Done():
	default:
		t.Fatalf("%s - future %s not settled", testPrefix, f.ID())
	}
	return f.Await(context.Background())
}

func assertPending(t *testing.T, f *Future) {
	t.Helper()
	select {
	case <-f.Done():
		t.Fatalf("%s - future %s settled too early", testPrefix, f.ID())
	default:
	}
}

func TestIssue_DefaultTimeout(t *testing.T) {
	timers := &manualTimers{}
	c := New(WithScheduler(timers.schedule))

	id, f := c.Issue()
	if id == "" || f.ID() != id {
		t.Fatalf("%s - expected matching non-empty id, got %q / %q", testPrefix, id, f.ID())
	}
	if got := timers.get(0).after; got != 10*time.Second {
		t.Errorf("%s - timeout armed for %v, want 10s", testPrefix, got)
	}
	if c.Pending() != 1 {
		t.Errorf("%s - Pending() = %d, want 1", testPrefix, c.Pending())
	}
}

func TestIssue_UniqueIDs(t *testing.T) {
	c := New(WithScheduler((&manualTimers{}).schedule))
	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		id, _ := c.Issue()
		if seen[id] {
			t.Fatalf("%s - duplicate id %s", testPrefix, id)
		}
		seen[id] = true
	}
}

func TestIssue_SkipsIDStillPending(t *testing.T) {
	ids := []string{"dup", "dup", "fresh"}
	i := 0
	c := New(WithScheduler((&manualTimers{}).schedule), WithIDGenerator(func() string {
		id := ids[i]
		i++
		return id
	}))

	first, _ := c.Issue()
	second, _ := c.Issue()
	if first != "dup" || second != "fresh" {
		t.Errorf("%s - got ids %q, %q; want dup, fresh", testPrefix, first, second)
	}
}

func TestComplete_ResolvesAndRemoves(t *testing.T) {
	timers := &manualTimers{}
	c := New(WithScheduler(timers.schedule))
	id, f := c.Issue()

	if !c.Complete(id, json.RawMessage(`{"ok":true}`)) {
		t.Fatalf("%s - Complete returned false for pending id", testPrefix)
	}
	payload, err := awaitNow(t, f)
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", testPrefix, err)
	}
	if string(payload) != `{"ok":true}` {
		t.Errorf("%s - payload = %s", testPrefix, payload)
	}
	if c.IsPending(id) {
		t.Errorf("%s - entry not removed after Complete", testPrefix)
	}
	if !timers.get(0).stopped {
		t.Errorf("%s - timeout not stopped after Complete", testPrefix)
	}
}

func TestFail_DefaultDescription(t *testing.T) {
	c := New(WithScheduler((&manualTimers{}).schedule))
	id, f := c.Issue()
	c.Fail(id, "")

	_, err := awaitNow(t, f)
	var hostErr *HostError
	if !errors.As(err, &hostErr) {
		t.Fatalf("%s - expected *HostError, got %T", testPrefix, err)
	}
	if hostErr.Message != "Unknown host error" {
		t.Errorf("%s - Message = %q", testPrefix, hostErr.Message)
	}
	if !errors.Is(err, ErrHostReported) {
		t.Errorf("%s - errors.Is(err, ErrHostReported) = false", testPrefix)
	}
}

func TestFail_HostDescription(t *testing.T) {
	c := New(WithScheduler((&manualTimers{}).schedule))
	id, f := c.Issue()
	c.Fail(id, "quota exceeded")

	_, err := awaitNow(t, f)
	if err == nil || err.Error() != "quota exceeded" {
		t.Errorf("%s - err = %v, want quota exceeded", testPrefix, err)
	}
}

func TestSettle_AtMostOnce(t *testing.T) {
	type step func(c *Correlator, id string) bool
	complete := func(c *Correlator, id string) bool { return c.Complete(id, json.RawMessage(`1`)) }
	fail := func(c *Correlator, id string) bool { return c.Fail(id, "boom") }
	expire := func(c *Correlator, id string) bool { return c.Expire(id) }

	tests := []struct {
		name      string
		first     step
		wantErr   error
		wantValue string
	}{
		{"complete first", complete, nil, "1"},
		{"fail first", fail, ErrHostReported, ""},
		{"expire first", expire, ErrTimeout, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(WithScheduler((&manualTimers{}).schedule))
			id, f := c.Issue()

			if !tt.first(c, id) {
				t.Fatalf("%s - first settle returned false", testPrefix)
			}
			for _, again := range []step{complete, fail, expire} {
				if again(c, id) {
					t.Errorf("%s - second settle took effect", testPrefix)
				}
			}

			payload, err := awaitNow(t, f)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("%s - err = %v, want %v", testPrefix, err, tt.wantErr)
				}
				return
			}
			if err != nil || string(payload) != tt.wantValue {
				t.Errorf("%s - got (%s, %v), want %s", testPrefix, payload, err, tt.wantValue)
			}
		})
	}
}

func TestTimeout_FiresWhenUnanswered(t *testing.T) {
	timers := &manualTimers{}
	c := New(WithScheduler(timers.schedule), WithTimeout(250*time.Millisecond))
	id, f := c.Issue()

	assertPending(t, f)
	timers.fire(0)

	_, err := awaitNow(t, f)
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("%s - expected *TimeoutError, got %v", testPrefix, err)
	}
	if timeoutErr.ID != id || timeoutErr.After != 250*time.Millisecond {
		t.Errorf("%s - unexpected timeout error %+v", testPrefix, timeoutErr)
	}
	if c.Pending() != 0 {
		t.Errorf("%s - pending entry survived timeout", testPrefix)
	}
}

func TestTimeout_SchedulerFiresOnArm(t *testing.T) {
	immediate := func(_ time.Duration, f func()) func() bool {
		f()
		return func() bool { return false }
	}
	c := New(WithScheduler(immediate))

	done := make(chan *Future, 1)
	go func() {
		_, f := c.Issue()
		done <- f
	}()

	var f *Future
	select {
	case f = <-done:
	case <-time.After(time.Second):
		t.Fatalf("%s - Issue blocked on a scheduler that fires immediately", testPrefix)
	}
	_, err := awaitNow(t, f)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("%s - err = %v, want timeout", testPrefix, err)
	}
	if c.Pending() != 0 {
		t.Errorf("%s - pending = %d, want 0", testPrefix, c.Pending())
	}
}

func TestTimeout_ReplyPreemptsTimer(t *testing.T) {
	timers := &manualTimers{}
	c := New(WithScheduler(timers.schedule))
	id, f := c.Issue()

	// The reply lands at the last moment; the timer callback still runs after.
	c.Complete(id, json.RawMessage(`"late but in time"`))
	timers.fire(0)

	payload, err := awaitNow(t, f)
	if err != nil {
		t.Fatalf("%s - reply lost to timeout: %v", testPrefix, err)
	}
	if string(payload) != `"late but in time"` {
		t.Errorf("%s - payload = %s", testPrefix, payload)
	}
}

func TestTimeout_RealClock(t *testing.T) {
	c := New(WithTimeout(30 * time.Millisecond))
	start := time.Now()
	_, f := c.Issue()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := f.Await(ctx)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("%s - err = %v, want timeout", testPrefix, err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("%s - timed out early after %v", testPrefix, elapsed)
	}
}

func TestLateReplyAfterTimeoutIsNoop(t *testing.T) {
	timers := &manualTimers{}
	c := New(WithScheduler(timers.schedule))
	id, f := c.Issue()
	timers.fire(0)

	if c.Complete(id, json.RawMessage(`1`)) {
		t.Errorf("%s - late reply was applied", testPrefix)
	}
	_, err := awaitNow(t, f)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("%s - outcome changed by late reply: %v", testPrefix, err)
	}
}

func TestOutOfOrderReplies(t *testing.T) {
	c := New(WithScheduler((&manualTimers{}).schedule), WithIDGenerator(sequentialIDs()))
	idA, fa := c.Issue()
	idB, fb := c.Issue()

	c.Complete(idB, json.RawMessage(`"B"`))
	assertPending(t, fa)
	payload, _ := awaitNow(t, fb)
	if string(payload) != `"B"` {
		t.Errorf("%s - B got %s", testPrefix, payload)
	}

	c.Complete(idA, json.RawMessage(`"A"`))
	payload, _ = awaitNow(t, fa)
	if string(payload) != `"A"` {
		t.Errorf("%s - A got %s", testPrefix, payload)
	}
}

func TestUnknownIDIsIgnored(t *testing.T) {
	c := New(WithScheduler((&manualTimers{}).schedule))
	if c.Complete("nope", nil) || c.Fail("nope", "x") || c.Expire("nope") {
		t.Errorf("%s - settle on unknown id reported success", testPrefix)
	}
}

func TestReject_LocalError(t *testing.T) {
	c := New(WithScheduler((&manualTimers{}).schedule))
	id, f := c.Issue()
	sendErr := errors.New("channel closed")
	c.Reject(id, sendErr)

	_, err := awaitNow(t, f)
	if !errors.Is(err, sendErr) {
		t.Errorf("%s - err = %v, want %v", testPrefix, err, sendErr)
	}
}

func TestFuture_AwaitHonoursContext(t *testing.T) {
	c := New(WithScheduler((&manualTimers{}).schedule))
	id, f := c.Issue()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Await(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("%s - err = %v, want context.Canceled", testPrefix, err)
	}
	if !c.IsPending(id) {
		t.Errorf("%s - abandoning Await must not cancel the request", testPrefix)
	}
}

func TestFuture_Decode(t *testing.T) {
	c := New(WithScheduler((&manualTimers{}).schedule))
	id, f := c.Issue()
	c.Complete(id, json.RawMessage(`{"theme":"dark"}`))

	var out struct {
		Theme string `json:"theme"`
	}
	if err := f.Decode(context.Background(), &out); err != nil {
		t.Fatalf("%s - Decode: %v", testPrefix, err)
	}
	if out.Theme != "dark" {
		t.Errorf("%s - Theme = %q", testPrefix, out.Theme)
	}
}

type countingObserver struct {
	mu       sync.Mutex
	issued   int
	outcomes []Outcome
}

func (o *countingObserver) RequestIssued() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.issued++
}

func (o *countingObserver) RequestSettled(outcome Outcome, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func TestObserver(t *testing.T) {
	timers := &manualTimers{}
	obs := &countingObserver{}
	c := New(WithScheduler(timers.schedule), WithObserver(obs))

	a, _ := c.Issue()
	b, _ := c.Issue()
	c.Issue()
	c.Complete(a, nil)
	c.Fail(b, "")
	timers.fire(2)
	timers.fire(0) // already settled; must not be counted again

	if obs.issued != 3 {
		t.Errorf("%s - issued = %d, want 3", testPrefix, obs.issued)
	}
	want := []Outcome{OutcomeResponse, OutcomeError, OutcomeTimeout}
	if fmt.Sprint(obs.outcomes) != fmt.Sprint(want) {
		t.Errorf("%s - outcomes = %v, want %v", testPrefix, obs.outcomes, want)
	}
}
