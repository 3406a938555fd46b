// Package reply decides what to send back for an inbound message.
package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"lead-agent/internal/domain"
)

// DefaultDeadline bounds a single generation call.
const DefaultDeadline = 6500 * time.Millisecond

// Source records which strategy produced a reply.
type Source string

const (
	SourceQuick     Source = "quick"
	SourceGenerated Source = "generated"
	SourceFallback  Source = "fallback"
)

// Generator produces a free-form reply for the given context. Implementations
// must honour ctx cancellation.
type Generator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (domain.Generation, error)
}

// Decision is the selected reply.
type Decision struct {
	Text   string
	Source Source
	// Rule names the quick rule that fired, when Source is SourceQuick.
	Rule string
	// Err is the generation failure that caused a fallback, if any.
	Err error
}

// Selector runs quick rules, then generation, then the fallback table.
type Selector struct {
	gen      Generator
	deadline time.Duration
	business string
	logger   *slog.Logger
}

type Option func(*Selector)

func WithDeadline(d time.Duration) Option {
	return func(s *Selector) {
		if d > 0 {
			s.deadline = d
		}
	}
}

func WithBusinessName(name string) Option {
	return func(s *Selector) {
		if name = strings.TrimSpace(name); name != "" {
			s.business = name
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Selector) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSelector creates a Selector. gen must not be nil.
func NewSelector(gen Generator, opts ...Option) (*Selector, error) {
	if gen == nil {
		return nil, errors.New("reply: generator must not be nil")
	}
	s := &Selector{
		gen:      gen,
		deadline: DefaultDeadline,
		business: "our studio",
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Select returns the reply for req. It always returns non-empty text.
func (s *Selector) Select(ctx context.Context, req domain.GenerationRequest) Decision {
	if text, rule, ok := matchQuick(req.LatestText, s.business); ok {
		return Decision{Text: text, Source: SourceQuick, Rule: rule}
	}

	text, err := s.generate(ctx, req)
	if err == nil {
		return Decision{Text: text, Source: SourceGenerated}
	}

	s.logger.Warn("generation unavailable, using fallback", "err", err)
	return Decision{
		Text:   Fallback(req.Lead, req.Missing, req.RecentTurns),
		Source: SourceFallback,
		Err:    err,
	}
}

// ErrEmptyGeneration is reported when generation succeeded without text.
var ErrEmptyGeneration = errors.New("reply: generation returned empty text")

func (s *Selector) generate(ctx context.Context, req domain.GenerationRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.deadline)
	defer cancel()

	type result struct {
		g   domain.Generation
		err error
	}
	// Buffered: the goroutine outlives Select when gen ignores ctx.
	done := make(chan result, 1)
	go func() {
		g, err := s.gen.Generate(ctx, req)
		done <- result{g: g, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("reply: generation: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("reply: generation: %w", r.err)
		}
		text := ExtractText(r.g)
		if text == "" {
			return "", ErrEmptyGeneration
		}
		return text, nil
	}
}
