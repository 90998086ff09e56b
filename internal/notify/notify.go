// Package notify fans committed lifecycle events out to sinks.
//
// Publishing never blocks the caller: events go onto a bounded queue and a
// single worker delivers them to each sink in turn. When the queue is full
// the event is dropped and counted. Delivery failures are logged and never
// reach the operation that produced the event.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbd888/sessionvault/internal/circuitbreaker"
)

// EventType names a lifecycle event.
type EventType string

const (
	EventBookingCreated      EventType = "booking.created"
	EventSessionFinalized    EventType = "session.finalized"
	EventSessionReclaimed    EventType = "session.reclaimed"
	EventExpertStatusChanged EventType = "expert.status_changed"
)

// Event is one committed state change.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	BookingID uint64                 `json:"bookingId,omitempty"`
	Parties   []string               `json:"parties,omitempty"`
	Data      map[string]interface{} `json:"data"`
}

// Involves reports whether addr is one of the event's parties.
func (e *Event) Involves(addr string) bool {
	for _, p := range e.Parties {
		if p == addr {
			return true
		}
	}
	return false
}

// Sink receives events from the dispatcher worker.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev *Event) error
}

const (
	DefaultQueueSize = 1024
	deliverTimeout   = 30 * time.Second
)

var (
	eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sessionvault",
		Subsystem: "notify",
		Name:      "events_published_total",
		Help:      "Events accepted onto the notification queue by type.",
	}, []string{"event_type"})

	eventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sessionvault",
		Subsystem: "notify",
		Name:      "events_dropped_total",
		Help:      "Events dropped because the notification queue was full.",
	}, []string{"event_type"})

	deliveryErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sessionvault",
		Subsystem: "notify",
		Name:      "delivery_errors_total",
		Help:      "Failed deliveries by sink.",
	}, []string{"sink"})

	deliverySkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sessionvault",
		Subsystem: "notify",
		Name:      "delivery_skipped_total",
		Help:      "Deliveries skipped because the sink's circuit was open.",
	}, []string{"sink"})
)

func init() {
	prometheus.MustRegister(eventsPublished, eventsDropped, deliveryErrors, deliverySkipped)
}

// Dispatcher queues events and delivers them to sinks on one worker.
type Dispatcher struct {
	sinks   []Sink
	queue   chan *Event
	logger  *slog.Logger
	breaker *circuitbreaker.Breaker

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewDispatcher creates a dispatcher. queueSize <= 0 uses DefaultQueueSize.
func NewDispatcher(logger *slog.Logger, queueSize int, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Dispatcher{
		sinks:  sinks,
		queue:  make(chan *Event, queueSize),
		logger: logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// WithBreaker skips a sink while its circuit is open, so one dead endpoint
// does not hold every event for its full retry budget. Call before Start.
func (d *Dispatcher) WithBreaker(b *circuitbreaker.Breaker) *Dispatcher {
	d.breaker = b
	return d
}

// AddSink registers another sink. Call before Start.
func (d *Dispatcher) AddSink(s Sink) {
	d.sinks = append(d.sinks, s)
}

// Publish enqueues ev without blocking. It returns false if ev was dropped.
func (d *Dispatcher) Publish(ev *Event) bool {
	if d == nil || ev == nil {
		return false
	}
	select {
	case d.queue <- ev:
		eventsPublished.WithLabelValues(string(ev.Type)).Inc()
		return true
	default:
		eventsDropped.WithLabelValues(string(ev.Type)).Inc()
		d.logger.Warn("notification queue full, dropping event", "event", ev.Type, "id", ev.ID)
		return false
	}
}

// Start runs the delivery worker until ctx ends or Stop is called. Events
// still queued at that point are delivered before it returns.
func (d *Dispatcher) Start(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		case <-ctx.Done():
			d.drain(context.Background())
			return
		case <-d.stop:
			d.drain(ctx)
			return
		}
	}
}

// Stop ends the worker and waits for queued events to be delivered.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
	<-d.done
}

func (d *Dispatcher) drain(ctx context.Context) {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev *Event) {
	for _, s := range d.sinks {
		err := d.deliverOne(ctx, s, ev)
		if errors.Is(err, circuitbreaker.ErrOpen) {
			deliverySkipped.WithLabelValues(s.Name()).Inc()
			d.logger.Debug("notification sink circuit open, skipping", "sink", s.Name(), "id", ev.ID)
			continue
		}
		if err != nil {
			deliveryErrors.WithLabelValues(s.Name()).Inc()
			d.logger.Warn("notification delivery failed",
				"sink", s.Name(),
				"event", ev.Type,
				"id", ev.ID,
				"error", err,
			)
		}
	}
}

func (d *Dispatcher) deliverOne(ctx context.Context, s Sink, ev *Event) error {
	send := func() error {
		dctx, cancel := context.WithTimeout(ctx, deliverTimeout)
		defer cancel()
		return s.Deliver(dctx, ev)
	}
	if d.breaker == nil {
		return send()
	}
	return d.breaker.Do(s.Name(), send)
}

// LogSink writes every event to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, ev *Event) error {
	attrs := []any{"id", ev.ID, "event", ev.Type}
	if ev.BookingID != 0 {
		attrs = append(attrs, "booking_id", ev.BookingID)
	}
	for k, v := range ev.Data {
		attrs = append(attrs, k, v)
	}
	s.logger.Info("lifecycle event", attrs...)
	return nil
}
