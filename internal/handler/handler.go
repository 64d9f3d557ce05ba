package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"payment-advisor-api/internal/features"
	"payment-advisor-api/internal/models"
	"payment-advisor-api/internal/service"
	"payment-advisor-api/internal/validation"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler provides HTTP handlers for the API.
type Handler struct {
	service     *service.Service
	features    *features.Manager
	health      Pinger
	maxBodySize int64
	logger      *slog.Logger
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
	// Health is pinged by GET /health. Nil always reports healthy.
	Health Pinger
	// Features enables the /features endpoints when set.
	Features *features.Manager
	Logger   *slog.Logger
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 1 << 20, // 1MB default
	}
}

// NewHandler creates a new handler instance.
func NewHandler(svc *service.Service) *Handler {
	return NewHandlerWithOptions(svc, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(svc *service.Service, opts NewHandlerOptions) *Handler {
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultHandlerOptions().MaxBodySize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handler{
		service:     svc,
		features:    opts.Features,
		health:      opts.Health,
		maxBodySize: opts.MaxBodySize,
		logger:      opts.Logger,
	}
}

// Routes mounts every endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Post("/offers", h.CreateOffer)

	if h.features != nil {
		r.Get("/features", h.ListFeatures)
		r.Put("/features/{name}", h.SetFeature)
	}

	r.Route("/users/{user_id}", func(r chi.Router) {
		r.Post("/best-offer", h.BestOffer)
		r.Get("/smart-score", h.SmartScore)
		r.Post("/pre-pay", h.PrePay)
		r.Post("/chat", h.Chat)
		r.Post("/cards", h.AddCard)
		r.Put("/profile", h.SetProfile)
		r.Put("/goals/{month}", h.SetGoal)
		r.Get("/goals/{month}/progress", h.GoalProgress)
		r.Post("/transactions", h.CreateTransactions)
		r.Post("/decisions", h.RecordDecision)
	})
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.health.Ping(ctx); err != nil {
			h.logger.Error("health check failed", "error", err)
			h.respondError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// ListFeatures handles GET /features
func (h *Handler) ListFeatures(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.features.List())
}

type setFeatureRequest struct {
	Enabled *bool `json:"enabled"`
}

// SetFeature handles PUT /features/{name}
func (h *Handler) SetFeature(w http.ResponseWriter, r *http.Request) {
	name := validation.SanitizeString(chi.URLParam(r, "name"))

	var req setFeatureRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		h.respondError(w, http.StatusBadRequest, "enabled is required")
		return
	}
	if !h.features.Set(name, *req.Enabled) {
		h.respondError(w, http.StatusNotFound, "unknown feature flag")
		return
	}

	h.logger.Info("feature flag changed", "flag", name, "enabled", *req.Enabled)
	for _, f := range h.features.List() {
		if f.Name == name {
			h.respondJSON(w, http.StatusOK, f)
			return
		}
	}
	h.respondJSON(w, http.StatusOK, features.FeatureFlag{Name: name, Enabled: *req.Enabled})
}

// BestOffer handles POST /users/{user_id}/best-offer
func (h *Handler) BestOffer(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req models.BestOfferRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Category = validation.SanitizeString(req.Category)
	req.Merchant = validation.SanitizeString(req.Merchant)
	if err := validation.ValidateBestOfferRequest(req); err != nil {
		h.handleError(w, r, err)
		return
	}

	resp, err := h.service.FindBestOffer(r.Context(), userID, req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// SmartScore handles GET /users/{user_id}/smart-score
func (h *Handler) SmartScore(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	res, err := h.service.ComputeSmartScore(r.Context(), userID)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

// PrePay handles POST /users/{user_id}/pre-pay. Once the request is valid it
// always answers 200.
func (h *Handler) PrePay(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req models.PrePayRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Category = validation.SanitizeString(req.Category)
	if err := validation.ValidatePrePayRequest(req); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, h.service.AnalyzePrePay(r.Context(), userID, req))
}

// Chat handles POST /users/{user_id}/chat
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req models.ChatRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Message = validation.SanitizeString(req.Message)
	if err := validation.ValidateChatRequest(req); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, h.service.Chat(r.Context(), userID, req))
}

// CreateOffer handles POST /offers
func (h *Handler) CreateOffer(w http.ResponseWriter, r *http.Request) {
	var req models.Offer
	if !h.decode(w, r, &req) {
		return
	}

	offer, err := h.service.CreateOffer(r.Context(), req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, offer)
}

// AddCard handles POST /users/{user_id}/cards
func (h *Handler) AddCard(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req models.Card
	if !h.decode(w, r, &req) {
		return
	}

	card, err := h.service.AddCard(r.Context(), userID, req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, card)
}

// SetProfile handles PUT /users/{user_id}/profile
func (h *Handler) SetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req models.UserProfile
	if !h.decode(w, r, &req) {
		return
	}

	profile, err := h.service.SetProfile(r.Context(), userID, req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, profile)
}

type setGoalRequest struct {
	TargetAmount float64 `json:"target_amount"`
}

// SetGoal handles PUT /users/{user_id}/goals/{month}
func (h *Handler) SetGoal(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req setGoalRequest
	if !h.decode(w, r, &req) {
		return
	}

	goal, err := h.service.SetGoal(r.Context(), userID, chi.URLParam(r, "month"), req.TargetAmount)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, goal)
}

// GoalProgress handles GET /users/{user_id}/goals/{month}/progress
func (h *Handler) GoalProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	progress, err := h.service.GoalProgress(r.Context(), userID, chi.URLParam(r, "month"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, progress)
}

// CreateTransactions handles POST /users/{user_id}/transactions
func (h *Handler) CreateTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req models.CreateTransactionsRequest
	if !h.decode(w, r, &req) {
		return
	}

	// Sanitize ids; the service normalizes the rest.
	for i := range req.Transactions {
		req.Transactions[i].ID = validation.SanitizeString(req.Transactions[i].ID)
	}

	inserted, err := h.service.CreateTransactions(r.Context(), userID, req.Transactions)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, models.CreateTransactionsResponse{
		Inserted: inserted,
	})
}

// RecordDecision handles POST /users/{user_id}/decisions
func (h *Handler) RecordDecision(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.userID(w, r)
	if !ok {
		return
	}

	var req models.DecisionRequest
	if !h.decode(w, r, &req) {
		return
	}

	txn, err := h.service.RecordDecision(r.Context(), userID, req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, txn)
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := validation.SanitizeString(chi.URLParam(r, "user_id"))
	if err := validation.ValidateUserID(userID); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return userID, true
}

// decode reads a size-limited JSON body into dst, writing a 4xx response and
// returning false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	// Limit request body size to prevent abuse
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			h.respondError(w, http.StatusBadRequest, "request body is required")
		case errors.As(err, &maxErr):
			h.respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		default:
			h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		}
		return false
	}
	return true
}

// handleError maps service errors onto status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validation.ValidationError
	switch {
	case errors.As(err, &verr):
		h.respondError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, service.ErrStoreUnavailable):
		h.logger.Error("store unavailable", "path", r.URL.Path, "error", err)
		h.respondError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.respondError(w, http.StatusServiceUnavailable, "request canceled")
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		h.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
