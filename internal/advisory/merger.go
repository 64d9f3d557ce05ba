package advisory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"payment-advisor-api/internal/events"
	"payment-advisor-api/internal/models"
)

// DefaultTimeout bounds one external advisory call.
const DefaultTimeout = 5 * time.Second

// FlagAdvisoryEnabled is the feature flag gating external calls.
const FlagAdvisoryEnabled = "advisory_enabled"

// User-facing texts used when the external call is skipped or fails.
const (
	PlaceholderMessage = "Thinking... Please wait a moment!"
	BusyMessage        = "I'm thinking! Please wait a moment..."
	ChatFallback       = "I'm focusing on your numbers right now! Try checking your Dashboard or Goals page for the latest updates."
)

// Outcomes reported in advisory.completed events.
const (
	OutcomeOK          = "ok"
	OutcomeRateLimited = "rate_limited"
	OutcomeFailed      = "failed"
)

var errDisabled = errors.New("advisory: disabled")

// Flags reports whether a feature flag is enabled.
type Flags interface {
	IsEnabled(name string) bool
}

// Merger decorates deterministic advice with external advisory text. It never
// fails: every problem degrades to the deterministic answer.
type Merger struct {
	advisor Advisor
	gate    Gate
	flags   Flags
	events  *events.Manager
	logger  *slog.Logger
	timeout time.Duration
}

// MergerOption configures a Merger.
type MergerOption func(*Merger)

func WithFlags(flags Flags) MergerOption {
	return func(m *Merger) { m.flags = flags }
}

func WithEvents(em *events.Manager) MergerOption {
	return func(m *Merger) { m.events = em }
}

func WithLogger(logger *slog.Logger) MergerOption {
	return func(m *Merger) { m.logger = logger }
}

func WithTimeout(d time.Duration) MergerOption {
	return func(m *Merger) { m.timeout = d }
}

// NewMerger creates a merger. A nil advisor disables external calls.
func NewMerger(advisor Advisor, gate Gate, opts ...MergerOption) *Merger {
	m := &Merger{
		advisor: advisor,
		gate:    gate,
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Merger) enabled() bool {
	if m.advisor == nil || m.gate == nil {
		return false
	}
	return m.flags == nil || m.flags.IsEnabled(FlagAdvisoryEnabled)
}

// call runs one gated external request. The gate is released when the call
// finishes, even if ctx is canceled first.
func (m *Merger) call(ctx context.Context, userID, kind string, req Request) (string, error) {
	if !m.enabled() {
		return "", errDisabled
	}

	release, err := m.gate.Acquire(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrBusy) && !errors.Is(err, ErrCoolingDown) {
			m.logger.Warn("advisory gate unavailable", "user_id", userID, "error", err)
		} else {
			m.logger.Info("advisory call gated", "user_id", userID, "kind", kind, "reason", err)
		}
		return "", err
	}
	defer release()

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	start := time.Now()
	text, err := m.advisor.Generate(callCtx, req)
	outcome := OutcomeOK
	switch {
	case errors.Is(err, ErrRateLimited):
		outcome = OutcomeRateLimited
		m.logger.Warn("advisory rate limited, using fallback", "user_id", userID, "kind", kind)
	case err != nil:
		outcome = OutcomeFailed
		m.logger.Error("advisory call failed, using fallback", "user_id", userID, "kind", kind, "error", err)
	}
	m.publish(ctx, userID, kind, outcome, time.Since(start))
	return text, err
}

func (m *Merger) publish(ctx context.Context, userID, kind, outcome string, d time.Duration) {
	m.events.PublishAdvisoryCompleted(ctx, events.AdvisoryCompletedData{
		UserID:   userID,
		Kind:     kind,
		Outcome:  outcome,
		Duration: d,
	})
}

func gated(err error) bool {
	return errors.Is(err, ErrBusy) || errors.Is(err, ErrCoolingDown)
}

// Merge returns base, supplemented by the external response to prompt when
// one is available. Only message and the insight's context, tradeoff and
// impact strings can change; structural fields always come from base.
func (m *Merger) Merge(ctx context.Context, userID string, base models.PrePayAdvice, prompt string) models.PrePayAdvice {
	text, err := m.call(ctx, userID, "pre_pay", Request{Prompt: prompt, JSON: true})
	if err != nil {
		if gated(err) {
			out := base
			out.Message = PlaceholderMessage
			return out
		}
		return base
	}

	merged, err := supplement(base, text)
	if err != nil {
		m.logger.Warn("advisory response unusable, using fallback", "user_id", userID, "error", err)
		return base
	}
	return merged
}

// supplement overlays non-empty string fields of an untrusted JSON object.
func supplement(base models.PrePayAdvice, text string) (models.PrePayAdvice, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		return base, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	str := func(key string) (string, bool) {
		s, ok := raw[key].(string)
		s = strings.TrimSpace(s)
		return s, ok && s != ""
	}

	out := base
	if s, ok := str("message"); ok {
		out.Message = s
	}
	if s, ok := str("context"); ok {
		out.StructuredInsight.Context = s
	}
	if s, ok := str("tradeoff"); ok {
		out.StructuredInsight.Tradeoff = s
	}
	if s, ok := str("impact"); ok {
		out.StructuredInsight.Impact = s
	}
	return out, nil
}

// Ask answers a free-form coach question. It always returns a reply.
func (m *Merger) Ask(ctx context.Context, userID, prompt string) string {
	text, err := m.call(ctx, userID, "chat", Request{Prompt: prompt})
	switch {
	case errors.Is(err, ErrBusy):
		return BusyMessage
	case errors.Is(err, ErrCoolingDown):
		return PlaceholderMessage
	case err != nil:
		return ChatFallback
	}
	if text = strings.TrimSpace(text); text == "" {
		return ChatFallback
	}
	return text
}
