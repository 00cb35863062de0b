package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gradewise/moderation-server/internal/model"
)

// EventName identifies a domain event emitted by the moderation core.
type EventName string

const (
	EventReportResolved EventName = "report_resolved"
	EventAppealReviewed EventName = "appeal_reviewed"
	EventUserSuspended  EventName = "user_suspended"
	EventUserBanned     EventName = "user_banned"
)

// Event is a committed state change other systems may react to.
// Events are published only after the owning transaction committed.
type Event struct {
	Name       EventName            `json:"name"`
	UserID     model.UserID         `json:"user_id"`
	ReportID   model.ReportID       `json:"report_id,omitempty"`
	AppealID   model.AppealID       `json:"appeal_id,omitempty"`
	Outcome    model.ReportOutcome  `json:"outcome,omitempty"`
	Decision   model.AppealDecision `json:"decision,omitempty"`
	OccurredAt time.Time            `json:"occurred_at"`
}

// Subscriber receives published events. A slow or failing subscriber never
// affects the moderation transaction that produced the event.
type Subscriber func(event Event)

// Dispatcher fans committed domain events out to subscribers.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers []Subscriber
	logger      *slog.Logger
	wg          sync.WaitGroup
}

// NewDispatcher - an event dispatcher logging subscriber panics to the logger.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	return &Dispatcher{logger: logger}
}

// Subscribe registers a subscriber for all future events.
func (d *Dispatcher) Subscribe(fn Subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.subscribers = append(d.subscribers, fn)
}

// Publish delivers the event to every subscriber asynchronously.
func (d *Dispatcher) Publish(event Event) {
	d.mu.RLock()
	subscribers := make([]Subscriber, len(d.subscribers))
	copy(subscribers, d.subscribers)
	d.mu.RUnlock()

	for _, fn := range subscribers {
		d.wg.Add(1)

		go func(fn Subscriber) {
			defer d.wg.Done()
			defer func() {
				if r := recover(); r != nil && d.logger != nil {
					d.logger.ErrorContext(context.Background(), "event subscriber panicked",
						slog.String("event", string(event.Name)),
						slog.String("error", fmt.Sprintf("%v", r)),
					)
				}
			}()

			fn(event)
		}(fn)
	}
}

// Wait blocks until all in-flight deliveries finished. Used on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
