package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"lead-agent/internal/domain"
	"lead-agent/internal/usecase"
)

type OperatorUseCase interface {
	Lead(ctx context.Context, sender string) (usecase.LeadView, error)
	SetSlot(ctx context.Context, sender string, slot domain.Slot, value string) (usecase.LeadView, error)
	Reset(ctx context.Context, sender string) error
}

// AdminHandler serves operator endpoints behind a bearer token read from
// Parameter Store.
type AdminHandler struct {
	uc         OperatorUseCase
	params     ParamGetter
	tokenParam string
	logger     *slog.Logger
}

type slotRequest struct {
	Value string `json:"value"`
}

func NewAdminHandler(uc OperatorUseCase, params ParamGetter, tokenParam string, logger *slog.Logger) (*AdminHandler, error) {
	if uc == nil {
		return nil, errors.New("handler: operator use case must not be nil")
	}
	if params == nil {
		return nil, errors.New("handler: param getter must not be nil")
	}
	if strings.TrimSpace(tokenParam) == "" {
		return nil, errors.New("handler: admin token parameter must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{uc: uc, params: params, tokenParam: tokenParam, logger: logger}, nil
}

// Routes returns the admin router, meant to be mounted under /admin.
func (a *AdminHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(a.authorize)
	r.Get("/leads/{sender}", a.getLead)
	r.Delete("/leads/{sender}", a.resetLead)
	r.Put("/leads/{sender}/slots/{slot}", a.putSlot)
	return r
}

func (a *AdminHandler) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		expected, err := a.params.GetParameter(r.Context(), a.tokenParam)
		if err != nil {
			a.logger.Error("load admin token", "err", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)})
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || expected == "" || subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			a.logger.Warn("admin request rejected", "path", r.URL.Path)
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "UNAUTHORIZED"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *AdminHandler) getLead(w http.ResponseWriter, r *http.Request) {
	view, err := a.uc.Lead(r.Context(), chi.URLParam(r, "sender"))
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *AdminHandler) putSlot(w http.ResponseWriter, r *http.Request) {
	var req slotRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(usecase.ErrorInvalidInput)})
		return
	}
	view, err := a.uc.SetSlot(r.Context(), chi.URLParam(r, "sender"), domain.Slot(chi.URLParam(r, "slot")), req.Value)
	if err != nil {
		a.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *AdminHandler) resetLead(w http.ResponseWriter, r *http.Request) {
	if err := a.uc.Reset(r.Context(), chi.URLParam(r, "sender")); err != nil {
		a.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *AdminHandler) writeError(w http.ResponseWriter, err error) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		a.logger.Error("admin request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)})
		return
	}
	status := http.StatusInternalServerError
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		status = http.StatusBadRequest
	case usecase.ErrorUpstream:
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		a.logger.Error("admin request failed", "code", ucErr.Code, "reason", ucErr.Reason, "err", ucErr.Err)
	}
	writeJSON(w, status, errorResponse{Error: string(ucErr.Code)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
