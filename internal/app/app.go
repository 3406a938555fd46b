// Package app wires configuration, AWS clients and the reply pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lead-agent/handler"
	"lead-agent/internal/config"
	"lead-agent/internal/dedup"
	"lead-agent/internal/integrations/openai"
	"lead-agent/internal/integrations/paramstore"
	"lead-agent/internal/integrations/whatsapp"
	"lead-agent/internal/lead"
	"lead-agent/internal/memory"
	"lead-agent/internal/metrics"
	"lead-agent/internal/reply"
	"lead-agent/internal/repository"
	"lead-agent/internal/usecase"
)

const paramCacheTTL = 5 * time.Minute

// SSMAPI is satisfied by *ssm.Client.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *awsssm.GetParameterInput, optFns ...func(*awsssm.Options)) (*awsssm.GetParameterOutput, error)
	GetParameters(ctx context.Context, in *awsssm.GetParametersInput, optFns ...func(*awsssm.Options)) (*awsssm.GetParametersOutput, error)
}

// DynamoAPI is satisfied by *dynamodb.Client.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *awsdynamodb.GetItemInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *awsdynamodb.PutItemInput, optFns ...func(*awsdynamodb.Options)) (*awsdynamodb.PutItemOutput, error)
}

// Clients are the external endpoints the pipeline talks to. Empty base URLs
// select the public APIs.
type Clients struct {
	SSM           SSMAPI
	Dynamo        DynamoAPI
	HTTPClient    *http.Client
	OpenAIBaseURL string
	GraphAPIBase  string
}

// App is a fully wired service.
type App struct {
	Handler *handler.Handler
	Admin   *handler.AdminHandler
	Service *usecase.ReplyService
	Metrics http.Handler
	Logger  *slog.Logger
}

// NewLogger returns a JSON logger writing to w at the named level.
func NewLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// New loads the default AWS config and builds the App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: load AWS config: %w", err)
	}
	clients := Clients{SSM: awsssm.NewFromConfig(awsCfg)}
	if cfg.LeadsTable != "" {
		clients.Dynamo = awsdynamodb.NewFromConfig(awsCfg)
	}
	return Build(ctx, cfg, clients, logger, prometheus.NewRegistry())
}

// Build wires the pipeline on top of clients.
func Build(ctx context.Context, cfg *config.Config, clients Clients, logger *slog.Logger, reg *prometheus.Registry) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config must not be nil")
	}
	if clients.SSM == nil {
		return nil, errors.New("app: SSM client must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	ssmClient, err := paramstore.New(clients.SSM)
	if err != nil {
		return nil, fmt.Errorf("app: create SSM client: %w", err)
	}
	params, err := paramstore.NewCached(ssmClient, paramCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("app: create param cache: %w", err)
	}
	warmParameters(ctx, params, cfg.ParamPrefix, logger)

	openaiOpts := []openai.Option{openai.WithJSONReplies()}
	var waOpts []whatsapp.Option
	if clients.OpenAIBaseURL != "" {
		openaiOpts = append(openaiOpts, openai.WithBaseURL(clients.OpenAIBaseURL))
	}
	if clients.GraphAPIBase != "" {
		waOpts = append(waOpts, whatsapp.WithGraphAPIBase(clients.GraphAPIBase))
	}
	if clients.HTTPClient != nil {
		openaiOpts = append(openaiOpts, openai.WithHTTPClient(clients.HTTPClient))
		waOpts = append(waOpts, whatsapp.WithHTTPClient(clients.HTTPClient))
	}

	openaiClient, err := openai.NewClient(params, cfg.ParamPrefix, openaiOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: create OpenAI client: %w", err)
	}
	waClient, err := whatsapp.NewClient(params, cfg.ParamPrefix+"/whatsapp-token", cfg.WhatsAppPhoneNumberID, waOpts...)
	if err != nil {
		return nil, fmt.Errorf("app: create WhatsApp client: %w", err)
	}

	gen, err := usecase.NewLLMGenerator(params, openaiClient, cfg.ParamPrefix, cfg.BusinessName)
	if err != nil {
		return nil, fmt.Errorf("app: create generator: %w", err)
	}
	selector, err := reply.NewSelector(gen,
		reply.WithDeadline(cfg.GenerationTimeout),
		reply.WithBusinessName(cfg.BusinessName),
		reply.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("app: create selector: %w", err)
	}

	mem := memory.New(memory.DefaultTTL, memory.DefaultMaxTurns)
	leads := lead.NewStore(lead.DefaultTTL)
	deps := usecase.ReplyDeps{
		Guard:    dedup.NewGuard(dedup.DefaultTTL),
		Memory:   mem,
		Leads:    leads,
		Selector: selector,
		Sender:   waClient,
	}
	opDeps := usecase.OperatorDeps{Memory: mem, Leads: leads}
	if clients.Dynamo != nil && cfg.LeadsTable != "" {
		repo, err := repository.New(clients.Dynamo, cfg.LeadsTable)
		if err != nil {
			return nil, fmt.Errorf("app: create lead repository: %w", err)
		}
		deps.Sink = repo
		opDeps.Archive = repo
	}

	m := metrics.NewReplyMetrics(reg)
	svc, err := usecase.NewReplyService(deps,
		usecase.WithDeliveryTimeout(cfg.DeliveryTimeout),
		usecase.WithMaxTextLength(cfg.MaxTextLength),
		usecase.WithLogger(logger),
		usecase.WithRecorder(m),
	)
	if err != nil {
		return nil, fmt.Errorf("app: create reply service: %w", err)
	}

	h, err := handler.NewHandler(svc, params, cfg.ParamPrefix+"/verify-token", logger)
	if err != nil {
		return nil, fmt.Errorf("app: create handler: %w", err)
	}

	operator, err := usecase.NewOperatorService(opDeps, logger)
	if err != nil {
		return nil, fmt.Errorf("app: create operator service: %w", err)
	}
	admin, err := handler.NewAdminHandler(operator, params, cfg.ParamPrefix+"/admin-token", logger)
	if err != nil {
		return nil, fmt.Errorf("app: create admin handler: %w", err)
	}

	return &App{
		Handler: h,
		Admin:   admin,
		Service: svc,
		Metrics: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:  logger,
	}, nil
}

// warmParameters preloads the parameter cache. A failure is logged only;
// missing values are fetched again on first use.
func warmParameters(ctx context.Context, ps *paramstore.Cached, prefix string, logger *slog.Logger) {
	names := []string{
		prefix + "/open-ai-token",
		prefix + "/whatsapp-token",
		prefix + "/verify-token",
		prefix + "/pinned_prompt",
		prefix + "/config/openai_model",
	}
	if err := ps.Prime(ctx, names...); err != nil {
		logger.Warn("parameter warm-up failed", "err", err)
	}
}
