// Package eventbus is the Event Bus (spec §4.5): a process-wide singleton
// publish/subscribe hub for update-progress events, grounded on the
// mutex-protected subscriber-list pattern in
// internal/agent/device/publisher.Publisher — a lock-guarded slice of
// subscribers notified synchronously, adapted here to per-job topics plus
// a global topic, with delivery fenced against a panicking subscriber.
package eventbus

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EventType enumerates the recognized UpdateEvent kinds (spec §4.5).
type EventType string

const (
	EventJobStarted      EventType = "job_started"
	EventJobProgress     EventType = "job_progress"
	EventJobCompleted    EventType = "job_completed"
	EventRouterStarted   EventType = "router_started"
	EventRouterProgress  EventType = "router_progress"
	EventRouterCompleted EventType = "router_completed"
	EventRouterFailed    EventType = "router_failed"
	EventBatchStarted    EventType = "batch_started"
	EventBatchCompleted  EventType = "batch_completed"
	EventBatchWaiting    EventType = "batch_waiting"
)

// UpdateEvent is the tagged record defined by spec §4.5. Fields unused by
// a given event type are left at their zero value and omitted on the wire
// by the stream gateway's JSON encoding.
type UpdateEvent struct {
	Type      EventType `json:"type"`
	JobID     string    `json:"jobId"`
	Timestamp time.Time `json:"timestamp"`

	RouterID          string  `json:"routerId,omitempty"`
	DeviceName        string  `json:"deviceName,omitempty"`
	IPAddress         string  `json:"ipAddress,omitempty"`
	Message           string  `json:"message,omitempty"`
	Progress          *int    `json:"progress,omitempty"`
	Total             *int    `json:"total,omitempty"`
	Completed         *int    `json:"completed,omitempty"`
	Failed            *int    `json:"failed,omitempty"`
	BatchNumber       *int    `json:"batchNumber,omitempty"`
	TotalBatches      *int    `json:"totalBatches,omitempty"`
	WaitTimeRemaining *int    `json:"waitTimeRemaining,omitempty"`
	FirmwareBefore    *string `json:"firmwareBefore,omitempty"`
	FirmwareAfter     *string `json:"firmwareAfter,omitempty"`
	Error             string  `json:"error,omitempty"`
	Status            string  `json:"status,omitempty"`
}

// Subscriber receives events as they are emitted.
type Subscriber func(UpdateEvent)

// Unsubscribe removes a prior subscription. Calling it more than once is
// a no-op.
type Unsubscribe func()

// Bus is the publish/subscribe hub. The zero value is not usable; build
// one with New.
type Bus struct {
	mu     sync.Mutex
	emitMu sync.Mutex
	byJob  map[string][]*subscription
	global []*subscription
	nextID uint64
	log    logrus.FieldLogger
}

type subscription struct {
	id uint64
	cb Subscriber
}

// New constructs an empty Bus.
func New(log logrus.FieldLogger) *Bus {
	return &Bus{byJob: make(map[string][]*subscription), log: log}
}

var (
	singleton     *Bus
	singletonOnce sync.Once
)

// Singleton returns the process-wide Bus, constructing it on first use.
func Singleton(log logrus.FieldLogger) *Bus {
	singletonOnce.Do(func() {
		singleton = New(log)
	})
	return singleton
}

// Subscribe registers cb for events on one job id only.
func (b *Bus) Subscribe(jobID string, cb Subscriber) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &subscription{id: b.nextID, cb: cb}
	b.byJob[jobID] = append(b.byJob[jobID], sub)

	return b.unsubscribeFunc(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.byJob[jobID] = removeSub(b.byJob[jobID], sub.id)
		if len(b.byJob[jobID]) == 0 {
			delete(b.byJob, jobID)
		}
	})
}

// SubscribeAll registers cb for every event on every job.
func (b *Bus) SubscribeAll(cb Subscriber) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &subscription{id: b.nextID, cb: cb}
	b.global = append(b.global, sub)

	return b.unsubscribeFunc(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.global = removeSub(b.global, sub.id)
	})
}

func (b *Bus) unsubscribeFunc(remove func()) Unsubscribe {
	var once sync.Once
	return func() { once.Do(remove) }
}

func removeSub(subs []*subscription, id uint64) []*subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// Emit delivers event to every job-scoped subscriber of event.JobID and
// every global subscriber, in that order, synchronously and under a
// bus-local emit lock, so concurrent Emit calls never interleave —
// guaranteeing in-order delivery per job to each subscriber. A
// panicking subscriber is recovered and logged so it cannot interrupt
// delivery to the rest.
func (b *Bus) Emit(event UpdateEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.emitMu.Lock()
	defer b.emitMu.Unlock()

	b.mu.Lock()
	targets := make([]*subscription, 0, len(b.byJob[event.JobID])+len(b.global))
	targets = append(targets, b.byJob[event.JobID]...)
	targets = append(targets, b.global...)
	b.mu.Unlock()

	for _, sub := range targets {
		b.deliver(sub, event)
	}
}

func (b *Bus) deliver(sub *subscription, event UpdateEvent) {
	defer func() {
		if r := recover(); r != nil && b.log != nil {
			b.log.WithField("job_id", event.JobID).Errorf("eventbus: subscriber panicked: %v", r)
		}
	}()
	sub.cb(event)
}

// Cleanup drops all subscribers for a job id. Called once a job's
// terminal event (job_completed) has been delivered.
func (b *Bus) Cleanup(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.byJob, jobID)
}
