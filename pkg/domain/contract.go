package domain

import "time"

// ContractStatus is the lifecycle state of a contract. Status only moves
// through the transitions enforced by pkg/lifecycle; EXECUTED and CANCELLED
// are terminal.
type ContractStatus string

const (
	StatusDraft             ContractStatus = "draft"
	StatusSent              ContractStatus = "sent"
	StatusPendingSignatures ContractStatus = "pending_signatures"
	StatusSigned            ContractStatus = "signed"
	StatusExecuted          ContractStatus = "executed"
	StatusCancelled         ContractStatus = "cancelled"
)

// Terminal reports whether no further transitions are permitted.
func (s ContractStatus) Terminal() bool {
	return s == StatusExecuted || s == StatusCancelled
}

// Signable reports whether a signature may still be recorded in this state.
// "sent" appears in some flows as a transient marker between draft and
// pending_signatures and is treated like either of them.
func (s ContractStatus) Signable() bool {
	switch s {
	case StatusDraft, StatusSent, StatusPendingSignatures:
		return true
	default:
		return false
	}
}

// ContractType distinguishes the document kinds the marketplace issues.
type ContractType string

const (
	TypeRyder       ContractType = "ryder"
	TypePerformance ContractType = "performance"
	TypeCustom      ContractType = "custom"
)

// ValidContractType reports whether t is one of the known contract types.
func ValidContractType(t ContractType) bool {
	switch t {
	case TypeRyder, TypePerformance, TypeCustom:
		return true
	default:
		return false
	}
}

// Contract is a booking contract between an artist party and a venue party.
// Contracts are never physically deleted; cancellation is a status.
type Contract struct {
	ContractID     string         `json:"contract_id"`
	BookingID      string         `json:"booking_id"`
	ArtistUserID   string         `json:"artist_user_id"`
	VenueUserID    string         `json:"venue_user_id"`
	Type           ContractType   `json:"type"`
	Title          string         `json:"title"`
	Content        string         `json:"content"`
	Status         ContractStatus `json:"status"`
	ArtistSignedAt *time.Time     `json:"artist_signed_at,omitempty"`
	VenueSignedAt  *time.Time     `json:"venue_signed_at,omitempty"`
	DocumentRef    *string        `json:"document_ref,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// SignedAtFor returns the signed timestamp recorded for the given party.
func (c Contract) SignedAtFor(role Role) *time.Time {
	switch role {
	case RoleArtist:
		return c.ArtistSignedAt
	case RoleVenue:
		return c.VenueSignedAt
	default:
		return nil
	}
}

// PartyUserID returns the user id of the given contract party, or "" when
// role is not a party role.
func (c Contract) PartyUserID(role Role) string {
	switch role {
	case RoleArtist:
		return c.ArtistUserID
	case RoleVenue:
		return c.VenueUserID
	default:
		return ""
	}
}

// PartyRoleOf returns the party role the user holds on this contract, or ""
// when the user is neither party.
func (c Contract) PartyRoleOf(userID string) Role {
	switch userID {
	case c.ArtistUserID:
		return RoleArtist
	case c.VenueUserID:
		return RoleVenue
	default:
		return ""
	}
}

// FullySigned reports whether both parties have a recorded signed timestamp.
func (c Contract) FullySigned() bool {
	return c.ArtistSignedAt != nil && c.VenueSignedAt != nil
}

// Signature is one party's captured signature on a contract. At most one
// signature exists per (contract, signer role) pair; corrections require a
// new contract, not an edit.
type Signature struct {
	SignatureID  string    `json:"signature_id"`
	ContractID   string    `json:"contract_id"`
	SignerUserID string    `json:"signer_user_id"`
	SignerRole   Role      `json:"signer_role"`
	SignerName   string    `json:"signer_name"`
	SignerEmail  string    `json:"signer_email"`
	Payload      string    `json:"-"`
	Method       string    `json:"method"`
	SignedAt     time.Time `json:"signed_at"`
	IPAddress    string    `json:"ip_address,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	VerifyToken  string    `json:"-"`
}
