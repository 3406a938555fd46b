package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"lead-agent/internal/domain"
	"lead-agent/internal/lead"
	"lead-agent/internal/memory"
)

// LeadArchive reads leads that were already handed off. *repository.Client
// satisfies it.
type LeadArchive interface {
	GetQualifiedLead(ctx context.Context, senderID string) (domain.Lead, bool, error)
}

// OperatorDeps are the collaborators of OperatorService. Archive is optional.
type OperatorDeps struct {
	Memory  *memory.Memory
	Leads   *lead.Store
	Archive LeadArchive
}

// LeadView is what an operator sees for one sender.
type LeadView struct {
	SenderID  string        `json:"senderId"`
	Lead      domain.Lead   `json:"lead"`
	Missing   []domain.Slot `json:"missing"`
	Turns     int           `json:"turns"`
	Qualified *domain.Lead  `json:"qualified,omitempty"`
}

// OperatorService lets a human inspect and correct the in-memory state the
// reply pipeline keeps per sender.
type OperatorService struct {
	deps   OperatorDeps
	logger *slog.Logger
}

func NewOperatorService(deps OperatorDeps, logger *slog.Logger) (*OperatorService, error) {
	if deps.Memory == nil {
		return nil, errors.New("usecase: conversation memory must not be nil")
	}
	if deps.Leads == nil {
		return nil, errors.New("usecase: lead store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OperatorService{deps: deps, logger: logger}, nil
}

// Lead returns the live lead for sender along with the archived copy when
// one was handed off.
func (s *OperatorService) Lead(ctx context.Context, sender string) (LeadView, error) {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return LeadView{}, newError(ErrorInvalidInput, "empty_sender", nil)
	}
	view := s.view(sender, s.deps.Leads.State(sender))
	if s.deps.Archive == nil {
		return view, nil
	}
	archived, ok, err := s.deps.Archive.GetQualifiedLead(ctx, sender)
	if err != nil {
		return LeadView{}, newError(ErrorUpstream, "archive_read_failed", err)
	}
	if ok {
		view.Qualified = &archived
	}
	return view, nil
}

// SetSlot overwrites one slot. An empty value clears it, which puts the slot
// back into the pipeline's questions.
func (s *OperatorService) SetSlot(_ context.Context, sender string, slot domain.Slot, value string) (LeadView, error) {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return LeadView{}, newError(ErrorInvalidInput, "empty_sender", nil)
	}
	if !slot.Valid() {
		return LeadView{}, newError(ErrorInvalidInput, "unknown_slot", nil)
	}
	l := s.deps.Leads.SetSlot(sender, slot, strings.TrimSpace(value))
	s.logger.Info("operator set slot", "sender", sender, "slot", slot)
	return s.view(sender, l), nil
}

// Reset forgets both the lead and the dialogue for sender, so the next
// message is treated as a first contact.
func (s *OperatorService) Reset(_ context.Context, sender string) error {
	sender = strings.TrimSpace(sender)
	if sender == "" {
		return newError(ErrorInvalidInput, "empty_sender", nil)
	}
	s.deps.Leads.Reset(sender)
	s.deps.Memory.Forget(sender)
	s.logger.Info("operator reset sender", "sender", sender)
	return nil
}

func (s *OperatorService) view(sender string, l domain.Lead) LeadView {
	return LeadView{
		SenderID: sender,
		Lead:     l,
		Missing:  lead.Missing(l),
		Turns:    len(s.deps.Memory.Turns(sender)),
	}
}
