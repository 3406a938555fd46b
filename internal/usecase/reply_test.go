package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lead-agent/internal/dedup"
	"lead-agent/internal/domain"
	"lead-agent/internal/lead"
	"lead-agent/internal/memory"
	"lead-agent/internal/reply"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	to    []string
	err   error
	block bool
}

func (f *fakeSender) SendText(ctx context.Context, to, text string) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	f.to = append(f.to, to)
	return f.err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeSink struct {
	saved  []domain.Lead
	err    error
	block  bool
	onSave func()
}

func (f *fakeSink) SaveQualifiedLead(ctx context.Context, _ string, l domain.Lead) error {
	if f.onSave != nil {
		f.onSave()
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.saved = append(f.saved, l)
	return f.err
}

type stubGenerator struct {
	text  string
	err   error
	delay time.Duration
}

func (g *stubGenerator) Generate(ctx context.Context, _ domain.GenerationRequest) (domain.Generation, error) {
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return domain.Generation{}, ctx.Err()
		}
	}
	return domain.Generation{Text: g.text}, g.err
}

type recordingRecorder struct {
	mu       sync.Mutex
	inbound  map[string]int
	delivery map[string]int
	handoff  map[string]int
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{inbound: map[string]int{}, delivery: map[string]int{}, handoff: map[string]int{}}
}

func (r *recordingRecorder) ObserveInbound(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inbound[s]++
}

func (r *recordingRecorder) ObserveReply(string, float64) {}

func (r *recordingRecorder) ObserveDelivery(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivery[s]++
}

func (r *recordingRecorder) ObserveHandoff(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handoff[s]++
}

type harness struct {
	svc    *ReplyService
	mem    *memory.Memory
	leads  *lead.Store
	sender *fakeSender
	sink   *fakeSink
	rec    *recordingRecorder
}

func newHarness(t *testing.T, gen reply.Generator, opts ...ReplyOption) *harness {
	t.Helper()
	sel, err := reply.NewSelector(gen, reply.WithDeadline(50*time.Millisecond))
	require.NoError(t, err)
	h := &harness{
		mem:    memory.New(0, 0),
		leads:  lead.NewStore(0),
		sender: &fakeSender{},
		sink:   &fakeSink{},
		rec:    newRecordingRecorder(),
	}
	opts = append([]ReplyOption{WithRecorder(h.rec)}, opts...)
	h.svc, err = NewReplyService(ReplyDeps{
		Guard:    dedup.NewGuard(0),
		Memory:   h.mem,
		Leads:    h.leads,
		Selector: sel,
		Sender:   h.sender,
		Sink:     h.sink,
	}, opts...)
	require.NoError(t, err)
	return h
}

func event(id, text string) domain.InboundEvent {
	return domain.InboundEvent{SenderID: "15551234567", EventID: id, Timestamp: 1717000000, Text: text}
}

func TestNewReplyService_ValidatesDependencies(t *testing.T) {
	sel, err := reply.NewSelector(&stubGenerator{})
	require.NoError(t, err)
	full := ReplyDeps{
		Guard:    dedup.NewGuard(0),
		Memory:   memory.New(0, 0),
		Leads:    lead.NewStore(0),
		Selector: sel,
		Sender:   &fakeSender{},
	}
	_, err = NewReplyService(full)
	require.NoError(t, err, "sink is optional")

	for name, mutate := range map[string]func(*ReplyDeps){
		"guard":    func(d *ReplyDeps) { d.Guard = nil },
		"memory":   func(d *ReplyDeps) { d.Memory = nil },
		"leads":    func(d *ReplyDeps) { d.Leads = nil },
		"selector": func(d *ReplyDeps) { d.Selector = nil },
		"sender":   func(d *ReplyDeps) { d.Sender = nil },
	} {
		deps := full
		mutate(&deps)
		_, err := NewReplyService(deps)
		require.Error(t, err, name)
	}
}

func TestHandleInbound_GeneratedReply(t *testing.T) {
	h := newHarness(t, &stubGenerator{text: `{"reply":"Lovely! When do you need it?"}`})

	out, err := h.svc.HandleInbound(context.Background(), event("wamid.1", "I need a logo for my bakery, budget around 500 USD"))
	require.NoError(t, err)
	require.Equal(t, StatusReplied, out.Status)
	require.Equal(t, reply.SourceGenerated, out.Source)
	require.Equal(t, "Lovely! When do you need it?", out.Reply)
	require.Equal(t, "logo", out.Lead.Service)
	require.Equal(t, "I need a logo for my bakery, budget around 500 USD", out.Lead.Budget)
	require.NotContains(t, out.Missing, domain.SlotService)
	require.NotContains(t, out.Missing, domain.SlotBudget)

	require.Equal(t, []string{"Lovely! When do you need it?"}, h.sender.sent)
	require.Equal(t, []string{"15551234567"}, h.sender.to)
	require.Equal(t, []domain.Turn{
		{Role: domain.RoleUser, Text: "I need a logo for my bakery, budget around 500 USD"},
		{Role: domain.RoleAssistant, Text: "Lovely! When do you need it?"},
	}, h.mem.Turns("15551234567"))
	require.Equal(t, 1, h.rec.inbound[string(StatusReplied)])
	require.Equal(t, 1, h.rec.delivery["sent"])
}

func TestHandleInbound_MalformedIsIgnored(t *testing.T) {
	h := newHarness(t, &stubGenerator{text: "hi"})

	for _, ev := range []domain.InboundEvent{
		{EventID: "a", Text: "hello"},
		{SenderID: "s", EventID: "b", Text: "   "},
		{SenderID: " ", EventID: "c", Text: "hello"},
	} {
		out, err := h.svc.HandleInbound(context.Background(), ev)
		require.NoError(t, err)
		require.Equal(t, StatusIgnored, out.Status)
	}
	require.Zero(t, h.sender.count())
	require.Empty(t, h.mem.Turns("s"))
	require.Equal(t, 3, h.rec.inbound[string(StatusIgnored)])
}

func TestHandleInbound_DuplicateEventIDProducesNoTurnOrSend(t *testing.T) {
	h := newHarness(t, &stubGenerator{text: "Thanks!"})

	first := event("wamid.ABC", "hello there")
	_, err := h.svc.HandleInbound(context.Background(), first)
	require.NoError(t, err)
	turnsBefore := h.mem.Turns(first.SenderID)

	second := first
	second.Timestamp++
	out, err := h.svc.HandleInbound(context.Background(), second)
	require.NoError(t, err)
	require.Equal(t, StatusDuplicate, out.Status)
	require.Equal(t, turnsBefore, h.mem.Turns(first.SenderID))
	require.Equal(t, 1, h.sender.count())
	require.Equal(t, 1, h.rec.inbound[string(StatusDuplicate)])
}

func TestHandleInbound_DuplicateCompositeWithoutEventID(t *testing.T) {
	h := newHarness(t, &stubGenerator{text: "Thanks!"})

	_, err := h.svc.HandleInbound(context.Background(), event("", "hello"))
	require.NoError(t, err)
	out, err := h.svc.HandleInbound(context.Background(), event("", "hello"))
	require.NoError(t, err)
	require.Equal(t, StatusDuplicate, out.Status)
	require.Equal(t, 1, h.sender.count())
}

func TestHandleInbound_GenerationTimeoutFallsBack(t *testing.T) {
	h := newHarness(t, &stubGenerator{text: "late", delay: time.Second})

	start := time.Now()
	out, err := h.svc.HandleInbound(context.Background(), event("wamid.slow", "hello"))
	require.NoError(t, err)
	require.Less(t, time.Since(start), 500*time.Millisecond)
	require.Equal(t, reply.SourceFallback, out.Source)
	require.NotEmpty(t, out.Reply)

	want := reply.Fallback(domain.Lead{}, lead.Missing(domain.Lead{}), []domain.Turn{{Role: domain.RoleUser, Text: "hello"}})
	require.Equal(t, want, out.Reply)
	require.Equal(t, []string{want}, h.sender.sent)
}

func TestHandleInbound_GenerationErrorFallsBackToNextQuestion(t *testing.T) {
	h := newHarness(t, &stubGenerator{err: errors.New("openai down")})

	out, err := h.svc.HandleInbound(context.Background(), event("wamid.1", "I need a website"))
	require.NoError(t, err)
	require.Equal(t, reply.SourceFallback, out.Source)
	require.Equal(t, reply.Fallback(out.Lead, out.Missing, h.mem.Turns("15551234567")[:1]), out.Reply)
	require.NotEqual(t, reply.Fallback(domain.Lead{}, lead.Missing(domain.Lead{}), nil), out.Reply, "no opening once a slot is known")
}

func TestHandleInbound_QuickRuleSkipsGeneration(t *testing.T) {
	gen := &stubGenerator{text: "generated"}
	h := newHarness(t, gen)

	out, err := h.svc.HandleInbound(context.Background(), event("wamid.q", "what services do you offer?"))
	require.NoError(t, err)
	require.Equal(t, reply.SourceQuick, out.Source)
	require.Contains(t, out.Reply, "logo design")
}

func TestHandleInbound_DeliveryFailureIsTypedAndNotRetried(t *testing.T) {
	h := newHarness(t, &stubGenerator{text: "hi!"})
	h.sender.err = errors.New("graph api 500")

	out, err := h.svc.HandleInbound(context.Background(), event("wamid.1", "hello"))
	var ucErr *Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, ErrorDelivery, ucErr.Code)
	require.Equal(t, "send_failed", ucErr.Reason)
	require.Equal(t, StatusUndelivered, out.Status)
	require.Equal(t, "hi!", out.Reply)
	require.Equal(t, 1, h.sender.count())
	require.Len(t, h.mem.Turns("15551234567"), 2, "turn is still recorded")
	require.Equal(t, 1, h.rec.delivery["failed"])
}

func TestHandleInbound_DeliveryTimeout(t *testing.T) {
	h := newHarness(t, &stubGenerator{text: "hi!"}, WithDeliveryTimeout(20*time.Millisecond))
	h.sender.block = true

	_, err := h.svc.HandleInbound(context.Background(), event("wamid.1", "hello"))
	var ucErr *Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, ErrorDelivery, ucErr.Code)
	require.Equal(t, "send_timeout", ucErr.Reason)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHandleInbound_TruncatesLongText(t *testing.T) {
	h := newHarness(t, &stubGenerator{text: "ok"}, WithMaxTextLength(10))

	_, err := h.svc.HandleInbound(context.Background(), event("wamid.1", "hello there friend, how are you"))
	require.NoError(t, err)
	turns := h.mem.Turns("15551234567")
	require.Equal(t, "hello ther", turns[0].Text)
}

func TestHandleInbound_HandsOffCompletedLeadOnce(t *testing.T) {
	h := newHarness(t, &stubGenerator{text: "ok"})
	sender := "15551234567"
	for slot, v := range map[domain.Slot]string{
		domain.SlotService:     "logo",
		domain.SlotTimeline:    "in 2 weeks",
		domain.SlotBrandName:   "Sweet Crumbs",
		domain.SlotStyle:       "playful",
		domain.SlotBudget:      "$500",
		domain.SlotContactName: "Sara",
	} {
		h.leads.SetSlot(sender, slot, v)
	}

	out, err := h.svc.HandleInbound(context.Background(), event("wamid.1", "here is fine"))
	require.NoError(t, err)
	require.Empty(t, out.Missing)
	require.True(t, out.HandedOff)
	require.Len(t, h.sink.saved, 1)
	require.Equal(t, "whatsapp", h.sink.saved[0].ContactChannel)

	out, err = h.svc.HandleInbound(context.Background(), event("wamid.2", "thanks!"))
	require.NoError(t, err)
	require.False(t, out.HandedOff)
	require.Len(t, h.sink.saved, 1)
	require.Equal(t, 1, h.rec.handoff["saved"])
}

func TestHandleInbound_HandoffFailureDoesNotBlockReply(t *testing.T) {
	h := newHarness(t, &stubGenerator{text: "ok"})
	h.sink.err = errors.New("dynamodb throttled")
	sender := "15551234567"
	for _, slot := range lead.Priority[:len(lead.Priority)-1] {
		h.leads.SetSlot(sender, slot, "x")
	}

	out, err := h.svc.HandleInbound(context.Background(), event("wamid.1", "email please"))
	require.NoError(t, err)
	require.False(t, out.HandedOff)
	require.Equal(t, StatusReplied, out.Status)
	require.Equal(t, 1, h.sender.count())
	require.Equal(t, 1, h.rec.handoff["failed"])
}

func TestHandleInbound_ReplyIsDeliveredBeforeSlowHandoff(t *testing.T) {
	h := newHarness(t, &stubGenerator{text: "ok"}, WithHandoffTimeout(20*time.Millisecond))
	h.sink.block = true
	sentAtSave := -1
	h.sink.onSave = func() { sentAtSave = h.sender.count() }
	sender := "15551234567"
	for _, slot := range lead.Priority[:len(lead.Priority)-1] {
		h.leads.SetSlot(sender, slot, "x")
	}

	start := time.Now()
	out, err := h.svc.HandleInbound(context.Background(), event("wamid.1", "email please"))
	require.NoError(t, err)
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, 1, sentAtSave, "reply must be sent before the handoff starts")
	require.Equal(t, StatusReplied, out.Status)
	require.False(t, out.HandedOff)
	require.Equal(t, 1, h.rec.handoff["failed"])
}

func TestHandleInbound_HandoffStillRunsWhenDeliveryFails(t *testing.T) {
	h := newHarness(t, &stubGenerator{text: "ok"})
	h.sender.err = errors.New("graph api 500")
	sender := "15551234567"
	for _, slot := range lead.Priority[:len(lead.Priority)-1] {
		h.leads.SetSlot(sender, slot, "x")
	}

	out, err := h.svc.HandleInbound(context.Background(), event("wamid.1", "email please"))
	require.Error(t, err)
	require.Equal(t, StatusUndelivered, out.Status)
	require.True(t, out.HandedOff)
	require.Len(t, h.sink.saved, 1)
}

func TestHandleInbound_UnknownTimestampDoesNotCollapseMessages(t *testing.T) {
	h := newHarness(t, &stubGenerator{text: "ok"})

	for _, id := range []string{"wamid.1", "wamid.2"} {
		ev := event(id, "yes")
		ev.Timestamp = 0
		out, err := h.svc.HandleInbound(context.Background(), ev)
		require.NoError(t, err)
		require.Equal(t, StatusReplied, out.Status, id)
	}
	require.Equal(t, 2, h.sender.count())
}

func TestHandleInbound_ConcurrentEventsForOneSenderAreLinearized(t *testing.T) {
	h := newHarness(t, &stubGenerator{text: "ack"})

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := h.svc.HandleInbound(context.Background(), event(fmt.Sprintf("wamid.%d", i), fmt.Sprintf("message %d", i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, 20, h.sender.count())
	turns := h.mem.Turns("15551234567")
	require.Len(t, turns, memory.DefaultMaxTurns)
	for i, turn := range turns {
		want := domain.RoleUser
		if i%2 == 1 {
			want = domain.RoleAssistant
		}
		require.Equal(t, want, turn.Role, "turns interleave user/assistant")
	}
	require.Zero(t, h.svc.senders.len())
}
