// Package correlator matches asynchronous host replies to outstanding requests.
//
// Every request is settled exactly once: by a matching RESPONSE (Complete),
// a matching ERROR or local failure (Fail, Reject), or the request timeout
// (Expire). Whichever runs first removes the pending entry; the others become
// no-ops, which absorbs late, duplicate and post-timeout replies.
package correlator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const logPrefix = "correlator:correlator"

// DefaultTimeout is how long a request may stay pending.
const DefaultTimeout = 10 * time.Second

// Scheduler runs f after d and returns a function that stops it. It exists so
// tests can drive timeouts by hand; the default is time.AfterFunc.
type Scheduler func(d time.Duration, f func()) (stop func() bool)

// Outcome says how a request settled.
type Outcome string

const (
	OutcomeResponse Outcome = "response"
	OutcomeError    Outcome = "error"
	OutcomeTimeout  Outcome = "timeout"
)

// Observer is notified of request lifecycle changes.
type Observer interface {
	RequestIssued()
	RequestSettled(outcome Outcome, elapsed time.Duration)
}

type pendingRequest struct {
	future *Future
	issued time.Time
	stop   func() bool
}

// Correlator owns the set of pending requests.
type Correlator struct {
	mu       sync.Mutex
	pending  map[string]*pendingRequest
	timeout  time.Duration
	schedule Scheduler
	newID    func() string
	observer Observer
}

// Option configures a Correlator.
type Option func(*Correlator)

// WithTimeout overrides DefaultTimeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Correlator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithScheduler replaces the timer implementation.
func WithScheduler(s Scheduler) Option {
	return func(c *Correlator) {
		if s != nil {
			c.schedule = s
		}
	}
}

// WithIDGenerator replaces the id generator. Generated ids must be unique
// among pending requests.
func WithIDGenerator(gen func() string) Option {
	return func(c *Correlator) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// WithObserver attaches a lifecycle observer (e.g. metrics).
func WithObserver(o Observer) Option {
	return func(c *Correlator) {
		c.observer = o
	}
}

// New creates a Correlator.
func New(opts ...Option) *Correlator {
	c := &Correlator{
		pending:  make(map[string]*pendingRequest),
		timeout:  DefaultTimeout,
		schedule: afterFunc,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func afterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Timeout returns the configured request timeout.
func (c *Correlator) Timeout() time.Duration {
	return c.timeout
}

// Issue registers a new pending request and arms its timeout.
func (c *Correlator) Issue() (string, *Future) {
	c.mu.Lock()
	id := c.newID()
	for _, taken := c.pending[id]; taken; _, taken = c.pending[id] {
		id = c.newID()
	}
	p := &pendingRequest{future: newFuture(id), issued: time.Now()}
	c.pending[id] = p
	c.mu.Unlock()

	if c.observer != nil {
		c.observer.RequestIssued()
	}

	// The scheduler may fire synchronously, so arm outside the lock.
	stop := c.schedule(c.timeout, func() { c.Expire(id) })
	c.mu.Lock()
	_, still := c.pending[id]
	if still {
		p.stop = stop
	}
	c.mu.Unlock()
	if !still && stop != nil {
		stop()
	}
	return id, p.future
}

// Complete resolves the request with payload. It reports whether a pending
// request was settled.
func (c *Correlator) Complete(id string, payload json.RawMessage) bool {
	return c.settle(id, payload, nil, OutcomeResponse)
}

// Fail rejects the request with a host-reported error. An empty description
// becomes DefaultHostError.
func (c *Correlator) Fail(id, description string) bool {
	if description == "" {
		description = DefaultHostError
	}
	return c.settle(id, nil, &HostError{ID: id, Message: description}, OutcomeError)
}

// Reject rejects the request with a local error, e.g. a failed send.
func (c *Correlator) Reject(id string, err error) bool {
	return c.settle(id, nil, err, OutcomeError)
}

// Expire rejects the request with a timeout error if it is still pending.
func (c *Correlator) Expire(id string) bool {
	return c.settle(id, nil, &TimeoutError{ID: id, After: c.timeout}, OutcomeTimeout)
}

// Pending returns the number of outstanding requests.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// IsPending reports whether id is still outstanding.
func (c *Correlator) IsPending(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	return ok
}

func (c *Correlator) settle(id string, payload json.RawMessage, err error, outcome Outcome) bool {
	c.mu.Lock()
	p, ok := c.pending[id]
	var stop func() bool
	if ok {
		delete(c.pending, id)
		stop = p.stop
	}
	c.mu.Unlock()

	if !ok {
		slog.Debug(fmt.Sprintf("%s - ignoring %s for unknown or settled id=%s", logPrefix, outcome, id))
		return false
	}
	if outcome != OutcomeTimeout && stop != nil {
		stop()
	}
	p.future.settle(payload, err)

	if c.observer != nil {
		c.observer.RequestSettled(outcome, time.Since(p.issued))
	}
	return true
}
