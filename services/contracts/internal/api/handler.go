// Package api exposes the contract lifecycle and signature verification over
// HTTP. Identity is an opaque, already-authenticated actor context supplied
// by the gateway; this service does not authenticate.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Ologywood-Platform/ologywoodv5-sub000/internal/metrics"
	"github.com/Ologywood-Platform/ologywoodv5-sub000/pkg/certify"
	"github.com/Ologywood-Platform/ologywoodv5-sub000/pkg/domain"
	"github.com/Ologywood-Platform/ologywoodv5-sub000/pkg/httpx"
	"github.com/Ologywood-Platform/ologywoodv5-sub000/pkg/lifecycle"
	"github.com/Ologywood-Platform/ologywoodv5-sub000/services/contracts/internal/idempotency"
)

// Store is what the HTTP layer reads directly, beyond what the lifecycle
// engine mediates: signature rows for verification plus idempotency records.
type Store interface {
	idempotency.Store
	GetSignature(ctx context.Context, contractID string, signerRole domain.Role) (domain.Signature, error)
	ListSignatures(ctx context.Context, contractID string) ([]domain.Signature, error)
}

type Handler struct {
	engine  *lifecycle.Engine
	issuer  *certify.Issuer
	store   Store
	metrics *metrics.Metrics
}

func NewHandler(engine *lifecycle.Engine, issuer *certify.Issuer, store Store, m *metrics.Metrics) *Handler {
	return &Handler{engine: engine, issuer: issuer, store: store, metrics: m}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/contracts", h.createContract)
	r.Get("/contracts/{contract_id}", h.getContract)
	r.Get("/contracts/{contract_id}/actions", h.availableActions)
	r.Post("/contracts/{contract_id}/sign", h.sign)
	r.Post("/contracts/{contract_id}/reject", h.reject)
	r.Post("/contracts/{contract_id}/approve", h.approve)
	r.Post("/contracts/{contract_id}/cancel", h.cancel)
	r.Post("/contracts/{contract_id}/execute", h.execute)
	r.Get("/contracts/{contract_id}/signatures", h.listSignatures)
	r.Post("/contracts/{contract_id}/signatures/{signer_role}/verify", h.verifySignature)
	r.Post("/signatures/verify-batch", h.verifyBatch)
	r.Post("/signatures/expiring-check", h.expiringSoon)
}

type actorContext struct {
	UserID         string      `json:"user_id"`
	Role           domain.Role `json:"role"`
	IdempotencyKey string      `json:"idempotency_key,omitempty"`
}

func (a actorContext) actor() domain.Actor {
	return domain.Actor{UserID: a.UserID, Role: a.Role}
}

func (a actorContext) idem() idempotency.ActorContext {
	return idempotency.ActorContext{UserID: a.UserID, IdempotencyKey: a.IdempotencyKey}
}

// writeEngineError maps lifecycle errors onto the API error taxonomy.
func (h *Handler) writeEngineError(w http.ResponseWriter, err error) {
	var status int
	var code string
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, lifecycle.ErrForbidden):
		status, code = http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, lifecycle.ErrAlreadySigned):
		status, code = http.StatusConflict, "ALREADY_SIGNED"
	case errors.Is(err, lifecycle.ErrInvalidState):
		status, code = http.StatusConflict, "INVALID_STATE"
	case errors.Is(err, lifecycle.ErrValidation):
		status, code = http.StatusBadRequest, "VALIDATION"
	default:
		httpx.WriteError(w, http.StatusInternalServerError, "DB_ERROR", err.Error(), nil)
		return
	}
	h.metrics.TransitionsRejected.WithLabelValues(code).Inc()
	httpx.WriteError(w, status, code, err.Error(), nil)
}

func (h *Handler) createContract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorContext      actorContext        `json:"actor_context"`
		BookingID         string              `json:"booking_id"`
		ArtistUserID      string              `json:"artist_user_id"`
		VenueUserID       string              `json:"venue_user_id"`
		Type              domain.ContractType `json:"type"`
		Title             string              `json:"title"`
		Content           string              `json:"content"`
		SendForSignatures bool                `json:"send_for_signatures"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
		return
	}
	c, err := h.engine.Create(r.Context(), req.ActorContext.actor(), lifecycle.CreateRequest{
		BookingID:         req.BookingID,
		ArtistUserID:      req.ArtistUserID,
		VenueUserID:       req.VenueUserID,
		Type:              req.Type,
		Title:             req.Title,
		Content:           req.Content,
		SendForSignatures: req.SendForSignatures,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"request_id": httpx.NewRequestID(), "contract": c})
}

func (h *Handler) getContract(w http.ResponseWriter, r *http.Request) {
	c, err := h.engine.GetContract(r.Context(), chi.URLParam(r, "contract_id"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"request_id": httpx.NewRequestID(), "contract": c})
}

func (h *Handler) availableActions(w http.ResponseWriter, r *http.Request) {
	actor := domain.Actor{
		UserID: r.URL.Query().Get("user_id"),
		Role:   domain.Role(r.URL.Query().Get("role")),
	}
	actions, err := h.engine.AvailableActions(r.Context(), chi.URLParam(r, "contract_id"), actor)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"request_id": httpx.NewRequestID(), "actions": actions})
}

func (h *Handler) sign(w http.ResponseWriter, r *http.Request) {
	contractID := chi.URLParam(r, "contract_id")
	var req struct {
		ActorContext actorContext `json:"actor_context"`
		SignAs       domain.Role  `json:"sign_as,omitempty"`
		Signer       struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"signer"`
		Signature struct {
			Payload string `json:"payload"`
			Method  string `json:"method"`
		} `json:"signature"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
		return
	}

	endpoint := "POST /contracts/{id}/sign " + contractID
	if status, body, replayed, err := idempotency.Replay(r.Context(), h.store, req.ActorContext.idem(), endpoint); err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "DB_ERROR", err.Error(), nil)
		return
	} else if replayed {
		httpx.WriteJSON(w, status, body)
		return
	}

	res, err := h.engine.Sign(r.Context(), contractID, req.ActorContext.actor(), lifecycle.SignRequest{
		SignAs:      req.SignAs,
		SignerName:  req.Signer.Name,
		SignerEmail: req.Signer.Email,
		Payload:     req.Signature.Payload,
		Method:      req.Signature.Method,
		IPAddress:   clientIP(r),
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	h.metrics.SignaturesCaptured.Inc()

	body := map[string]any{
		"request_id":  httpx.NewRequestID(),
		"contract":    res.Contract,
		"signature":   res.Signature,
		"certificate": res.Certificate,
	}
	_ = idempotency.Save(r.Context(), h.store, req.ActorContext.idem(), endpoint, http.StatusOK, body)
	httpx.WriteJSON(w, http.StatusOK, body)
}

type reasonRequest struct {
	ActorContext actorContext `json:"actor_context"`
	Reason       string       `json:"reason,omitempty"`
	Notes        string       `json:"notes,omitempty"`
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
		return
	}
	c, err := h.engine.Reject(r.Context(), chi.URLParam(r, "contract_id"), req.ActorContext.actor(), req.Reason)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"request_id": httpx.NewRequestID(), "contract": c})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
		return
	}
	c, err := h.engine.Approve(r.Context(), chi.URLParam(r, "contract_id"), req.ActorContext.actor(), req.Notes)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"request_id": httpx.NewRequestID(), "contract": c})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
		return
	}
	c, err := h.engine.Cancel(r.Context(), chi.URLParam(r, "contract_id"), req.ActorContext.actor(), req.Reason)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"request_id": httpx.NewRequestID(), "contract": c})
}

// execute is the booking system's trigger once the booked event completed.
func (h *Handler) execute(w http.ResponseWriter, r *http.Request) {
	c, err := h.engine.Execute(r.Context(), chi.URLParam(r, "contract_id"))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"request_id": httpx.NewRequestID(), "contract": c})
}

func (h *Handler) listSignatures(w http.ResponseWriter, r *http.Request) {
	sigs, err := h.store.ListSignatures(r.Context(), chi.URLParam(r, "contract_id"))
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "DB_ERROR", err.Error(), nil)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"request_id": httpx.NewRequestID(), "signatures": sigs})
}

// verifySignature re-derives the certificate of a stored signature and
// checks a candidate payload against it.
func (h *Handler) verifySignature(w http.ResponseWriter, r *http.Request) {
	contractID := chi.URLParam(r, "contract_id")
	role := domain.Role(chi.URLParam(r, "signer_role"))
	if !role.Party() {
		httpx.WriteError(w, http.StatusBadRequest, "VALIDATION", "signer_role must be artist or venue", nil)
		return
	}
	var req struct {
		Payload string `json:"payload"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
		return
	}

	sig, err := h.store.GetSignature(r.Context(), contractID, role)
	if err != nil {
		if errors.Is(err, lifecycle.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "NOT_FOUND", "signature not found", nil)
			return
		}
		httpx.WriteError(w, http.StatusInternalServerError, "DB_ERROR", err.Error(), nil)
		return
	}

	cert, err := h.issuer.Capture(certify.CaptureInput{
		SignerName:        sig.SignerName,
		SignerEmail:       sig.SignerEmail,
		SignerRole:        string(sig.SignerRole),
		ContractID:        sig.ContractID,
		Payload:           []byte(sig.Payload),
		CapturedAt:        sig.SignedAt,
		CertificateNumber: sig.VerifyToken,
	})
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "CERTIFY_ERROR", err.Error(), nil)
		return
	}

	result := h.issuer.Verify(cert, []byte(req.Payload))
	h.metrics.Verifications.WithLabelValues(
		metrics.VerificationOutcome(result.Valid, result.TamperDetected, result.Reason)).Inc()
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"request_id":  httpx.NewRequestID(),
		"certificate": cert,
		"result":      result,
	})
}

func (h *Handler) verifyBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Certificates []certify.Certificate `json:"certificates"`
		Payloads     map[string]string     `json:"payloads"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
		return
	}
	payloads := make(map[string][]byte, len(req.Payloads))
	for number, payload := range req.Payloads {
		payloads[number] = []byte(payload)
	}
	results := h.issuer.BatchVerify(req.Certificates, payloads)
	for _, res := range results {
		h.metrics.Verifications.WithLabelValues(
			metrics.VerificationOutcome(res.Valid, res.TamperDetected, res.Reason)).Inc()
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"request_id": httpx.NewRequestID(), "results": results})
}

// expiringSoon answers whether a certificate is inside the given expiry
// window. Used by the renewal reminder job.
func (h *Handler) expiringSoon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Certificate certify.Certificate `json:"certificate"`
		Days        int                 `json:"days"`
	}
	if err := httpx.ReadJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "BAD_JSON", err.Error(), nil)
		return
	}
	if req.Days < 0 {
		httpx.WriteError(w, http.StatusBadRequest, "VALIDATION", "days must be non-negative", nil)
		return
	}
	if req.Days == 0 {
		req.Days = 30
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"request_id":    httpx.NewRequestID(),
		"expiring_soon": h.issuer.ExpiringSoon(req.Certificate, req.Days),
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
