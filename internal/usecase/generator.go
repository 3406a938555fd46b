package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"lead-agent/internal/domain"
)

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// LLMGenerator produces replies with a chat completion model. The model name
// and pinned prompt are read from Parameter Store on first use.
type LLMGenerator struct {
	params       ParamGetter
	llm          LLMClient
	paramPrefix  string
	businessName string

	cacheMu      sync.RWMutex
	cacheLoaded  bool
	pinnedPrompt string
	openaiModel  string
}

func NewLLMGenerator(p ParamGetter, llm LLMClient, paramPrefix, businessName string) (*LLMGenerator, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	businessName = strings.TrimSpace(businessName)
	if businessName == "" {
		businessName = "our studio"
	}
	return &LLMGenerator{
		params:       p,
		llm:          llm,
		paramPrefix:  paramPrefix,
		businessName: businessName,
	}, nil
}

// Generate implements reply.Generator.
func (g *LLMGenerator) Generate(ctx context.Context, req domain.GenerationRequest) (domain.Generation, error) {
	if err := g.ensureConfig(ctx); err != nil {
		return domain.Generation{}, newError(ErrorInternal, "ssm_load_error", err)
	}

	raw, err := g.llm.Chat(ctx, g.openaiModel, buildPromptMessages(
		promptContext{
			pinnedPrompt: g.pinnedPrompt,
			businessName: g.businessName,
		},
		req,
	))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return domain.Generation{}, newError(ErrorTimeout, "openai_timeout", err)
		}
		if status, ok := upstreamStatusCode(err); ok && status == 429 {
			return domain.Generation{}, newError(ErrorRateLimited, "openai_rate_limited", err)
		}
		return domain.Generation{}, newError(ErrorUpstream, "openai_error", err)
	}
	return domain.Generation{Text: raw}, nil
}

func (g *LLMGenerator) ensureConfig(ctx context.Context) error {
	g.cacheMu.RLock()
	if g.cacheLoaded {
		g.cacheMu.RUnlock()
		return nil
	}
	g.cacheMu.RUnlock()

	g.cacheMu.Lock()
	defer g.cacheMu.Unlock()
	if g.cacheLoaded {
		return nil
	}

	pinnedPrompt, openaiModel, err := g.loadSSMParams(ctx)
	if err != nil {
		return err
	}

	g.pinnedPrompt = pinnedPrompt
	g.openaiModel = openaiModel
	g.cacheLoaded = true
	return nil
}

func (g *LLMGenerator) loadSSMParams(ctx context.Context) (pinnedPrompt, openaiModel string, err error) {
	pinnedPrompt, err = g.params.GetParameter(ctx, g.paramPrefix+"/pinned_prompt")
	if err != nil {
		return "", "", fmt.Errorf("usecase: load pinned prompt: %w", err)
	}
	openaiModel, err = g.params.GetParameter(ctx, g.paramPrefix+"/config/openai_model")
	if err != nil {
		return "", "", fmt.Errorf("usecase: load openai model: %w", err)
	}
	return pinnedPrompt, openaiModel, nil
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
