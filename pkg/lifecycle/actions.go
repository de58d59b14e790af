package lifecycle

import (
	"context"

	"github.com/Ologywood-Platform/ologywoodv5-sub000/pkg/domain"
)

// Action is a lifecycle operation an actor may currently perform.
type Action string

const (
	ActionSign    Action = "sign"
	ActionReject  Action = "reject"
	ActionApprove Action = "approve"
	ActionCancel  Action = "cancel"
)

// AvailableActions returns which actions are currently legal for the actor
// on the given contract, mirroring the transition preconditions exactly. It
// is a read-only query used to drive UI affordances; a non-party non-admin
// actor gets an empty list. No side effects.
func (e *Engine) AvailableActions(ctx context.Context, contractID string, actor domain.Actor) ([]Action, error) {
	c, err := e.store.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}

	admin := actor.Admin()
	role := c.PartyRoleOf(actor.UserID)
	if !admin && role == "" {
		return []Action{}, nil
	}

	var out []Action
	if c.Status.Signable() {
		canSign := false
		if admin {
			canSign = c.ArtistSignedAt == nil || c.VenueSignedAt == nil
		} else {
			canSign = c.SignedAtFor(role) == nil
		}
		if canSign {
			out = append(out, ActionSign)
		}
		out = append(out, ActionReject)
	}
	if admin && c.Status == domain.StatusSigned {
		out = append(out, ActionApprove)
	}
	if !c.Status.Terminal() {
		out = append(out, ActionCancel)
	}
	if out == nil {
		out = []Action{}
	}
	return out, nil
}
