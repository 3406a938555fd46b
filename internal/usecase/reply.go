package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"lead-agent/internal/dedup"
	"lead-agent/internal/domain"
	"lead-agent/internal/lead"
	"lead-agent/internal/memory"
	"lead-agent/internal/reply"
)

const (
	defaultDeliveryTimeout = 10 * time.Second
	defaultHandoffTimeout  = 3 * time.Second
	defaultMaxTextLength   = 1000
)

// Status is the terminal state of one inbound event.
type Status string

const (
	StatusIgnored     Status = "ignored"
	StatusDuplicate   Status = "duplicate"
	StatusReplied     Status = "replied"
	StatusUndelivered Status = "undelivered"
)

// Sender delivers a reply to a chat participant.
type Sender interface {
	SendText(ctx context.Context, to, text string) error
}

// LeadSink receives leads whose required slots are all filled.
type LeadSink interface {
	SaveQualifiedLead(ctx context.Context, senderID string, l domain.Lead) error
}

// ReplySelector picks the reply text for a turn.
type ReplySelector interface {
	Select(ctx context.Context, req domain.GenerationRequest) reply.Decision
}

// Recorder receives pipeline counters. *metrics.ReplyMetrics satisfies it.
type Recorder interface {
	ObserveInbound(status string)
	ObserveReply(source string, seconds float64)
	ObserveDelivery(status string)
	ObserveHandoff(status string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveInbound(string)        {}
func (noopRecorder) ObserveReply(string, float64) {}
func (noopRecorder) ObserveDelivery(string)       {}
func (noopRecorder) ObserveHandoff(string)        {}

// ReplyDeps are the collaborators of ReplyService. All but Sink are required.
type ReplyDeps struct {
	Guard    *dedup.Guard
	Memory   *memory.Memory
	Leads    *lead.Store
	Selector ReplySelector
	Sender   Sender
	Sink     LeadSink
}

// Outcome describes what HandleInbound did with an event.
type Outcome struct {
	Status    Status
	Reply     string
	Source    reply.Source
	Lead      domain.Lead
	Missing   []domain.Slot
	HandedOff bool
}

type ReplyOption func(*ReplyService)

func WithDeliveryTimeout(d time.Duration) ReplyOption {
	return func(s *ReplyService) {
		if d > 0 {
			s.deliveryTimeout = d
		}
	}
}

func WithHandoffTimeout(d time.Duration) ReplyOption {
	return func(s *ReplyService) {
		if d > 0 {
			s.handoffTimeout = d
		}
	}
}

func WithMaxTextLength(n int) ReplyOption {
	return func(s *ReplyService) {
		if n > 0 {
			s.maxTextLength = n
		}
	}
}

func WithLogger(l *slog.Logger) ReplyOption {
	return func(s *ReplyService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithRecorder(r Recorder) ReplyOption {
	return func(s *ReplyService) {
		if r != nil {
			s.recorder = r
		}
	}
}

// ReplyService runs one conversational turn per inbound event.
type ReplyService struct {
	deps            ReplyDeps
	deliveryTimeout time.Duration
	handoffTimeout  time.Duration
	maxTextLength   int
	logger          *slog.Logger
	recorder        Recorder
	senders         *keyedMutex
	now             func() time.Time
}

func NewReplyService(deps ReplyDeps, opts ...ReplyOption) (*ReplyService, error) {
	switch {
	case deps.Guard == nil:
		return nil, errors.New("usecase: dedup guard must not be nil")
	case deps.Memory == nil:
		return nil, errors.New("usecase: conversation memory must not be nil")
	case deps.Leads == nil:
		return nil, errors.New("usecase: lead store must not be nil")
	case deps.Selector == nil:
		return nil, errors.New("usecase: reply selector must not be nil")
	case deps.Sender == nil:
		return nil, errors.New("usecase: sender must not be nil")
	}
	s := &ReplyService{
		deps:            deps,
		deliveryTimeout: defaultDeliveryTimeout,
		handoffTimeout:  defaultHandoffTimeout,
		maxTextLength:   defaultMaxTextLength,
		logger:          slog.Default(),
		recorder:        noopRecorder{},
		senders:         newKeyedMutex(),
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// HandleInbound processes ev end to end. Malformed and duplicate events leave
// all state untouched. The only error returned is a DELIVERY_ERROR, paired
// with the Outcome of the turn that was recorded.
func (s *ReplyService) HandleInbound(ctx context.Context, ev domain.InboundEvent) (Outcome, error) {
	senderID := strings.TrimSpace(ev.SenderID)
	if senderID == "" || strings.TrimSpace(ev.Text) == "" {
		s.recorder.ObserveInbound(string(StatusIgnored))
		return Outcome{Status: StatusIgnored}, nil
	}

	if ev.Timestamp <= 0 {
		s.logger.Warn("inbound event without usable timestamp", "sender", senderID, "event_id", ev.EventID)
	}
	if s.deps.Guard.IsDuplicate(ev.EventID, dedup.CompositeKey(senderID, ev.Timestamp, ev.Text)) {
		s.logger.Info("duplicate inbound event", "sender", senderID, "event_id", ev.EventID)
		s.recorder.ObserveInbound(string(StatusDuplicate))
		return Outcome{Status: StatusDuplicate}, nil
	}

	unlock := s.senders.Lock(senderID)
	defer unlock()

	text := truncateRunes(strings.TrimSpace(ev.Text), s.maxTextLength)

	s.deps.Memory.Append(senderID, domain.RoleUser, text)
	recent := s.deps.Memory.Turns(senderID)

	wasMissing := len(lead.Missing(s.deps.Leads.State(senderID))) > 0
	current := s.deps.Leads.ApplyExtraction(senderID, text)
	missing := lead.Missing(current)

	started := s.now()
	decision := s.deps.Selector.Select(ctx, domain.GenerationRequest{
		Lead:        current,
		Missing:     missing,
		LatestText:  text,
		RecentTurns: recent,
	})
	s.recorder.ObserveReply(string(decision.Source), s.now().Sub(started).Seconds())

	s.deps.Memory.Append(senderID, domain.RoleAssistant, decision.Text)

	out := Outcome{
		Status:  StatusReplied,
		Reply:   decision.Text,
		Source:  decision.Source,
		Lead:    current,
		Missing: missing,
	}
	// The reply goes out before the handoff so a slow sink never delays it.
	deliverErr := s.deliver(ctx, senderID, decision.Text)
	if wasMissing && len(missing) == 0 {
		out.HandedOff = s.handOff(ctx, senderID, current)
	}

	if err := deliverErr; err != nil {
		s.logger.Error("reply delivery failed", "sender", senderID, "event_id", ev.EventID, "source", decision.Source, "err", err)
		s.recorder.ObserveDelivery("failed")
		s.recorder.ObserveInbound(string(StatusUndelivered))
		out.Status = StatusUndelivered
		return out, err
	}
	s.recorder.ObserveDelivery("sent")
	s.recorder.ObserveInbound(string(StatusReplied))
	s.logger.Info("reply sent", "sender", senderID, "event_id", ev.EventID, "source", decision.Source, "missing", len(missing))
	return out, nil
}

func (s *ReplyService) deliver(ctx context.Context, to, text string) error {
	ctx, cancel := context.WithTimeout(ctx, s.deliveryTimeout)
	defer cancel()
	if err := s.deps.Sender.SendText(ctx, to, text); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return newError(ErrorDelivery, "send_timeout", err)
		}
		return newError(ErrorDelivery, "send_failed", err)
	}
	return nil
}

func (s *ReplyService) handOff(ctx context.Context, senderID string, l domain.Lead) bool {
	if s.deps.Sink == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, s.handoffTimeout)
	defer cancel()
	if err := s.deps.Sink.SaveQualifiedLead(ctx, senderID, l); err != nil {
		s.logger.Error("lead handoff failed", "sender", senderID, "err", err)
		s.recorder.ObserveHandoff("failed")
		return false
	}
	s.logger.Info("lead qualified", "sender", senderID, "service", l.Service)
	s.recorder.ObserveHandoff("saved")
	return true
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit]))
}
