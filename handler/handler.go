package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"lead-agent/internal/domain"
	"lead-agent/internal/integrations/whatsapp"
	"lead-agent/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

type InboundUseCase interface {
	HandleInbound(ctx context.Context, ev domain.InboundEvent) (usecase.Outcome, error)
}

type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Handler adapts API Gateway webhook requests to the reply use case.
type Handler struct {
	uc               InboundUseCase
	params           ParamGetter
	verifyTokenParam string
	logger           *slog.Logger
}

type eventResult struct {
	EventID string `json:"eventId,omitempty"`
	Status  string `json:"status"`
	Source  string `json:"source,omitempty"`
}

type webhookResponse struct {
	Received int           `json:"received"`
	Events   []eventResult `json:"events"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHandler(uc InboundUseCase, params ParamGetter, verifyTokenParam string, logger *slog.Logger) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	if params == nil {
		return nil, errors.New("handler: param getter must not be nil")
	}
	if strings.TrimSpace(verifyTokenParam) == "" {
		return nil, errors.New("handler: verify token parameter must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{uc: uc, params: params, verifyTokenParam: verifyTokenParam, logger: logger}, nil
}

// Handle serves the webhook verification handshake (GET) and inbound message
// notifications (POST). Processed notifications are always acknowledged with
// 200 so the platform does not redeliver them.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := headerValue(req.Headers, correlationHeader)
	if corrID == "" {
		corrID = newUUID()
	}
	logger := h.logger.With("correlation_id", corrID)

	switch req.HTTPMethod {
	case http.MethodGet:
		return h.verify(ctx, logger, corrID, req), nil
	case http.MethodPost:
		return h.notify(ctx, logger, corrID, req), nil
	default:
		return jsonResponse(http.StatusMethodNotAllowed, corrID, errorResponse{Error: "METHOD_NOT_ALLOWED"}), nil
	}
}

func (h *Handler) verify(ctx context.Context, logger *slog.Logger, corrID string, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	expected, err := h.params.GetParameter(ctx, h.verifyTokenParam)
	if err != nil {
		logger.Error("load verify token", "err", err)
		return jsonResponse(http.StatusInternalServerError, corrID, errorResponse{Error: string(usecase.ErrorInternal)})
	}
	q := req.QueryStringParameters
	challenge, ok := whatsapp.VerifyChallenge(q["hub.mode"], q["hub.verify_token"], q["hub.challenge"], expected)
	if !ok {
		logger.Warn("webhook verification rejected", "mode", q["hub.mode"])
		return jsonResponse(http.StatusForbidden, corrID, errorResponse{Error: "FORBIDDEN"})
	}
	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			"Content-Type":    "text/plain",
			correlationHeader: corrID,
		},
		Body: challenge,
	}
}

func (h *Handler) notify(ctx context.Context, logger *slog.Logger, corrID string, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return jsonResponse(http.StatusBadRequest, corrID, errorResponse{Error: string(usecase.ErrorInvalidInput)})
		}
		body = decoded
	}

	inbound, err := whatsapp.ParseWebhook(body)
	if err != nil {
		logger.Warn("invalid webhook payload", "err", err)
		return jsonResponse(http.StatusBadRequest, corrID, errorResponse{Error: string(usecase.ErrorInvalidInput)})
	}

	resp := webhookResponse{Received: len(inbound), Events: make([]eventResult, 0, len(inbound))}
	for _, ev := range inbound {
		out, err := h.uc.HandleInbound(ctx, ev)
		if err != nil {
			var ucErr *usecase.Error
			if errors.As(err, &ucErr) {
				logger.Error("inbound event failed", "event_id", ev.EventID, "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
			} else {
				logger.Error("inbound event failed", "event_id", ev.EventID, "err", err)
			}
		}
		resp.Events = append(resp.Events, eventResult{
			EventID: ev.EventID,
			Status:  string(out.Status),
			Source:  string(out.Source),
		})
	}
	return jsonResponse(http.StatusOK, corrID, resp)
}

func jsonResponse(status int, corrID string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: corrID,
		},
		Body: string(body),
	}
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

var newUUID = func() string {
	return uuid.NewString()
}
