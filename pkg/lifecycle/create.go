package lifecycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Ologywood-Platform/ologywoodv5-sub000/pkg/domain"
)

// CreateRequest opens a new contract for a booking. SendForSignatures starts
// the contract in pending_signatures instead of draft.
type CreateRequest struct {
	BookingID         string
	ArtistUserID      string
	VenueUserID       string
	Type              domain.ContractType
	Title             string
	Content           string
	SendForSignatures bool
}

// Create records a new contract in draft (or pending_signatures). Either
// party on the booking may create it; admins may create on their behalf.
func (e *Engine) Create(ctx context.Context, actor domain.Actor, req CreateRequest) (domain.Contract, error) {
	if strings.TrimSpace(req.ArtistUserID) == "" || strings.TrimSpace(req.VenueUserID) == "" {
		return domain.Contract{}, fmt.Errorf("%w: both contract parties are required", ErrValidation)
	}
	if strings.TrimSpace(req.Content) == "" {
		return domain.Contract{}, fmt.Errorf("%w: contract content is required", ErrValidation)
	}
	if !domain.ValidContractType(req.Type) {
		return domain.Contract{}, fmt.Errorf("%w: unknown contract type %q", ErrValidation, req.Type)
	}
	if !actor.Admin() && actor.UserID != req.ArtistUserID && actor.UserID != req.VenueUserID {
		return domain.Contract{}, ErrForbidden
	}

	status := domain.StatusDraft
	if req.SendForSignatures {
		status = domain.StatusPendingSignatures
	}
	now := e.now().UTC()
	c := domain.Contract{
		ContractID:   "ctr_" + uuid.NewString(),
		BookingID:    req.BookingID,
		ArtistUserID: req.ArtistUserID,
		VenueUserID:  req.VenueUserID,
		Type:         req.Type,
		Title:        req.Title,
		Content:      req.Content,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.CreateContract(ctx, c, AuditEvent{
		Kind:        AuditCreated,
		ActorUserID: actor.UserID,
		Details: map[string]any{
			"booking_id": req.BookingID,
			"status":     string(status),
		},
	}); err != nil {
		return domain.Contract{}, err
	}
	return c, nil
}
