package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event.
type EventType string

const (
	// EventOfferRecommended is emitted after a best offer lookup returns a candidate.
	EventOfferRecommended EventType = "offer.recommended"
	// EventScoreComputed is emitted after a Smart Score is computed.
	EventScoreComputed EventType = "score.computed"
	// EventAdvisoryCompleted is emitted when an advisory call finishes, successfully or not.
	EventAdvisoryCompleted EventType = "advisory.completed"
	// EventTransactionsIngested is emitted after a batch of transactions is stored.
	EventTransactionsIngested EventType = "transactions.ingested"
)

// Event represents an event in the system.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Data      any
}

// OfferRecommendedData contains data for offer recommended events.
type OfferRecommendedData struct {
	UserID  string
	OfferID string
	Stage   string
	Amount  float64
	Savings float64
}

// ScoreComputedData contains data for score computed events.
type ScoreComputedData struct {
	UserID     string
	SmartScore int
}

// AdvisoryCompletedData describes the outcome of one gated advisory call.
type AdvisoryCompletedData struct {
	UserID   string
	Kind     string // "pre_pay" or "chat"
	Outcome  string // "ok", "rate_limited" or "failed"
	Duration time.Duration
}

// TransactionsIngestedData contains data for transaction ingestion events.
type TransactionsIngestedData struct {
	UserID string
	Count  int
}

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Manager manages event handlers and event publishing. A nil *Manager
// discards everything published to it.
type Manager struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	enabled  bool
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewManager creates a new event manager.
func NewManager(enabled bool, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		handlers: make(map[EventType][]Handler),
		enabled:  enabled,
		logger:   logger,
	}
}

// Subscribe subscribes a handler to a specific event type.
func (m *Manager) Subscribe(eventType EventType, handler Handler) {
	if m == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled {
		return
	}
	m.handlers[eventType] = append(m.handlers[eventType], handler)
}

// Publish publishes an event to all subscribed handlers. Handlers run
// asynchronously and outlive the publishing request.
func (m *Manager) Publish(ctx context.Context, eventType EventType, data any) {
	if m == nil {
		return
	}

	// Handlers are counted under the read lock so Shutdown cannot start
	// waiting between the enabled check and wg.Add.
	m.mu.RLock()
	defer m.mu.RUnlock()

	handlers := m.handlers[eventType]
	if !m.enabled || len(handlers) == 0 {
		return
	}

	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
	}

	ctx = context.WithoutCancel(ctx)
	for _, handler := range handlers {
		m.wg.Add(1)
		go func(h Handler) {
			defer m.wg.Done()
			if err := h(ctx, event); err != nil {
				m.logger.Warn("event handler failed", "event", event.Type, "event_id", event.ID, "error", err)
			}
		}(handler)
	}
}

// PublishOfferRecommended publishes an offer recommended event.
func (m *Manager) PublishOfferRecommended(ctx context.Context, data OfferRecommendedData) {
	m.Publish(ctx, EventOfferRecommended, data)
}

// PublishScoreComputed publishes a score computed event.
func (m *Manager) PublishScoreComputed(ctx context.Context, userID string, score int) {
	m.Publish(ctx, EventScoreComputed, ScoreComputedData{UserID: userID, SmartScore: score})
}

// PublishAdvisoryCompleted publishes an advisory completed event.
func (m *Manager) PublishAdvisoryCompleted(ctx context.Context, data AdvisoryCompletedData) {
	m.Publish(ctx, EventAdvisoryCompleted, data)
}

// PublishTransactionsIngested publishes a transactions ingested event.
func (m *Manager) PublishTransactionsIngested(ctx context.Context, userID string, count int) {
	m.Publish(ctx, EventTransactionsIngested, TransactionsIngestedData{UserID: userID, Count: count})
}

// Wait blocks until every handler started so far has returned.
func (m *Manager) Wait() {
	if m == nil {
		return
	}
	m.wg.Wait()
}

// Shutdown stops delivery and waits for in-flight handlers.
func (m *Manager) Shutdown() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.enabled = false
	m.handlers = make(map[EventType][]Handler)
	m.mu.Unlock()

	m.wg.Wait()
}
