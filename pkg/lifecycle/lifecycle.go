// Package lifecycle owns the contract status field and the rules governing
// which transitions are legal given the current status and the acting party.
// It talks to its collaborators (storage, notification, the certificate
// issuer) through narrow interfaces and never issues queries of its own.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Ologywood-Platform/ologywoodv5-sub000/pkg/certify"
	"github.com/Ologywood-Platform/ologywoodv5-sub000/pkg/domain"
)

// EventContractSigned is emitted to the notification collaborator when both
// parties have signed.
const EventContractSigned = "contract.signed"

// Audit event kinds recorded alongside transitions.
const (
	AuditCreated   = "CREATED"
	AuditSigned    = "SIGNED"
	AuditRejected  = "REJECTED"
	AuditApproved  = "APPROVED"
	AuditCancelled = "CANCELLED"
	AuditExecuted  = "EXECUTED"
)

// ContractUpdate is a partial update of a contract record. Nil fields are
// left untouched. ExpectStatus guards the write: the update only applies
// while the stored status is one of the listed values, which keeps two
// near-simultaneous transitions from both succeeding.
type ContractUpdate struct {
	Status       *domain.ContractStatus
	DocumentRef  *string
	ExpectStatus []domain.ContractStatus
}

// AuditEvent is one append-only contract_events entry. Transitions hand it
// to the store so it commits in the same transaction as the status change.
type AuditEvent struct {
	Kind        string
	ActorUserID string
	Details     map[string]any
}

// Store is the storage collaborator. Every transition method is atomic: on
// any error nothing is persisted, including the audit event.
//
// RecordSignature inserts the signature, stamps the signing party's
// timestamp at sig.SignedAt, and derives the status from the row as written:
// signed once both timestamps are set, pending_signatures otherwise. The
// write only applies while the stored status is one of expect; a guard miss
// on an existing contract is ErrInvalidState and leaves no signature behind.
// A duplicate (contract, signer role) insert is ErrAlreadySigned, enforced
// by a uniqueness constraint.
//
// ApplyTransition applies a guarded partial update under the same
// ExpectStatus semantics.
type Store interface {
	CreateContract(ctx context.Context, c domain.Contract, event AuditEvent) error
	GetContract(ctx context.Context, contractID string) (domain.Contract, error)
	ApplyTransition(ctx context.Context, contractID string, upd ContractUpdate, event AuditEvent) (domain.Contract, error)
	RecordSignature(ctx context.Context, sig domain.Signature, expect []domain.ContractStatus, event AuditEvent) (domain.Contract, error)
	GetSignature(ctx context.Context, contractID string, signerRole domain.Role) (domain.Signature, error)
	ListSignatures(ctx context.Context, contractID string) ([]domain.Signature, error)
	AppendEvent(ctx context.Context, contractID string, event AuditEvent) error
}

// Notifier is the notification collaborator. Calls are fire-and-forget; the
// engine consumes no return value.
type Notifier interface {
	Notify(ctx context.Context, contractID, eventKind string)
}

// Engine applies lifecycle transitions to stored contracts.
type Engine struct {
	store    Store
	notifier Notifier
	issuer   *certify.Issuer
	now      func() time.Time
}

// EngineOption adjusts engine construction.
type EngineOption func(*Engine)

// WithNow injects the clock used for signed timestamps.
func WithNow(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(store Store, notifier Notifier, issuer *certify.Issuer, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    store,
		notifier: notifier,
		issuer:   issuer,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GetContract reads a contract through the storage collaborator.
func (e *Engine) GetContract(ctx context.Context, contractID string) (domain.Contract, error) {
	return e.store.GetContract(ctx, contractID)
}

// SignRequest carries one party's signature capture. SignAs is required when
// the actor is an admin: admins must state which party they sign on behalf
// of rather than defaulting to one.
type SignRequest struct {
	SignAs      domain.Role
	SignerName  string
	SignerEmail string
	Payload     string
	Method      string
	IPAddress   string
	UserAgent   string
}

// SignResult is the outcome of a successful sign transition.
type SignResult struct {
	Contract    domain.Contract
	Signature   domain.Signature
	Certificate certify.Certificate
}

// Sign records one party's signature on a contract, issues its certificate
// and advances the status: to pending_signatures while the other party is
// outstanding, to signed once both timestamps are set. All preconditions are
// checked before any write.
func (e *Engine) Sign(ctx context.Context, contractID string, actor domain.Actor, req SignRequest) (SignResult, error) {
	if strings.TrimSpace(req.Payload) == "" {
		return SignResult{}, fmt.Errorf("%w: signature payload is required", ErrValidation)
	}
	if strings.TrimSpace(req.SignerEmail) == "" {
		return SignResult{}, fmt.Errorf("%w: signer email is required", ErrValidation)
	}

	c, err := e.store.GetContract(ctx, contractID)
	if err != nil {
		return SignResult{}, err
	}

	role, err := resolveSigningRole(c, actor, req.SignAs)
	if err != nil {
		return SignResult{}, err
	}
	if !c.Status.Signable() {
		return SignResult{}, fmt.Errorf("%w: cannot sign a %s contract", ErrInvalidState, c.Status)
	}
	if c.SignedAtFor(role) != nil {
		return SignResult{}, ErrAlreadySigned
	}
	if _, err := e.store.GetSignature(ctx, contractID, role); err == nil {
		return SignResult{}, ErrAlreadySigned
	} else if !errors.Is(err, ErrNotFound) {
		return SignResult{}, err
	}

	signedAt := e.now().UTC()
	cert, err := e.issuer.Capture(certify.CaptureInput{
		SignerName:  req.SignerName,
		SignerEmail: req.SignerEmail,
		SignerRole:  string(role),
		ContractID:  c.ContractID,
		Payload:     []byte(req.Payload),
		CapturedAt:  signedAt,
	})
	if err != nil {
		return SignResult{}, fmt.Errorf("%w: %s", ErrValidation, err)
	}

	sig := domain.Signature{
		SignatureID:  "sig_" + uuid.NewString(),
		ContractID:   c.ContractID,
		SignerUserID: actor.UserID,
		SignerRole:   role,
		SignerName:   req.SignerName,
		SignerEmail:  req.SignerEmail,
		Payload:      req.Payload,
		Method:       req.Method,
		SignedAt:     signedAt,
		IPAddress:    req.IPAddress,
		UserAgent:    req.UserAgent,
		VerifyToken:  cert.CertificateNumber,
	}
	updated, err := e.store.RecordSignature(ctx, sig, signableStatuses(), AuditEvent{
		Kind:        AuditSigned,
		ActorUserID: actor.UserID,
		Details: map[string]any{
			"signer_role":        string(role),
			"certificate_number": cert.CertificateNumber,
			"method":             req.Method,
		},
	})
	if err != nil {
		return SignResult{}, err
	}

	if updated.Status == domain.StatusSigned {
		e.notifier.Notify(ctx, c.ContractID, EventContractSigned)
	}
	return SignResult{Contract: updated, Signature: sig, Certificate: cert}, nil
}

// Reject cancels a contract that has not completed signing. Rejection of a
// fully signed contract is not a reject but a cancel.
func (e *Engine) Reject(ctx context.Context, contractID string, actor domain.Actor, reason string) (domain.Contract, error) {
	c, err := e.store.GetContract(ctx, contractID)
	if err != nil {
		return domain.Contract{}, err
	}
	if err := requirePartyOrAdmin(c, actor); err != nil {
		return domain.Contract{}, err
	}
	if !c.Status.Signable() {
		return domain.Contract{}, fmt.Errorf("%w: cannot reject a %s contract", ErrInvalidState, c.Status)
	}

	cancelled := domain.StatusCancelled
	return e.store.ApplyTransition(ctx, c.ContractID, ContractUpdate{
		Status:       &cancelled,
		ExpectStatus: signableStatuses(),
	}, AuditEvent{
		Kind:        AuditRejected,
		ActorUserID: actor.UserID,
		Details:     map[string]any{"reason": reason},
	})
}

// Approve is the admin's confirmatory review of a fully signed contract.
// The status stays signed; the approval is recorded as an audit event.
func (e *Engine) Approve(ctx context.Context, contractID string, actor domain.Actor, notes string) (domain.Contract, error) {
	c, err := e.store.GetContract(ctx, contractID)
	if err != nil {
		return domain.Contract{}, err
	}
	if !actor.Admin() {
		return domain.Contract{}, fmt.Errorf("%w: approve is admin-only", ErrForbidden)
	}
	if c.Status != domain.StatusSigned {
		return domain.Contract{}, fmt.Errorf("%w: cannot approve a %s contract", ErrInvalidState, c.Status)
	}
	if err := e.store.AppendEvent(ctx, c.ContractID, AuditEvent{
		Kind:        AuditApproved,
		ActorUserID: actor.UserID,
		Details:     map[string]any{"notes": notes},
	}); err != nil {
		return domain.Contract{}, err
	}
	return c, nil
}

// Cancel moves a contract to cancelled from any non-terminal status.
func (e *Engine) Cancel(ctx context.Context, contractID string, actor domain.Actor, reason string) (domain.Contract, error) {
	c, err := e.store.GetContract(ctx, contractID)
	if err != nil {
		return domain.Contract{}, err
	}
	if err := requirePartyOrAdmin(c, actor); err != nil {
		return domain.Contract{}, err
	}
	if c.Status.Terminal() {
		return domain.Contract{}, fmt.Errorf("%w: contract is already %s", ErrInvalidState, c.Status)
	}

	cancelled := domain.StatusCancelled
	return e.store.ApplyTransition(ctx, c.ContractID, ContractUpdate{
		Status:       &cancelled,
		ExpectStatus: nonTerminalStatuses(),
	}, AuditEvent{
		Kind:        AuditCancelled,
		ActorUserID: actor.UserID,
		Details:     map[string]any{"reason": reason},
	})
}

// Execute marks a fully signed contract as executed once the booked event
// has completed. This is triggered by the booking system, not by a party.
func (e *Engine) Execute(ctx context.Context, contractID string) (domain.Contract, error) {
	c, err := e.store.GetContract(ctx, contractID)
	if err != nil {
		return domain.Contract{}, err
	}
	if c.Status != domain.StatusSigned {
		return domain.Contract{}, fmt.Errorf("%w: cannot execute a %s contract", ErrInvalidState, c.Status)
	}
	executed := domain.StatusExecuted
	return e.store.ApplyTransition(ctx, c.ContractID, ContractUpdate{
		Status:       &executed,
		ExpectStatus: []domain.ContractStatus{domain.StatusSigned},
	}, AuditEvent{Kind: AuditExecuted})
}

// resolveSigningRole decides which party's signature is being recorded.
// Admins must name the party explicitly; parties sign as themselves.
func resolveSigningRole(c domain.Contract, actor domain.Actor, signAs domain.Role) (domain.Role, error) {
	if actor.Admin() {
		if !signAs.Party() {
			return "", fmt.Errorf("%w: admin must specify sign_as artist or venue", ErrValidation)
		}
		return signAs, nil
	}
	role := c.PartyRoleOf(actor.UserID)
	if role == "" {
		return "", ErrForbidden
	}
	if signAs != "" && signAs != role {
		return "", fmt.Errorf("%w: cannot sign on behalf of the other party", ErrForbidden)
	}
	return role, nil
}

func requirePartyOrAdmin(c domain.Contract, actor domain.Actor) error {
	if actor.Admin() {
		return nil
	}
	if c.PartyRoleOf(actor.UserID) == "" {
		return ErrForbidden
	}
	return nil
}

func signableStatuses() []domain.ContractStatus {
	return []domain.ContractStatus{
		domain.StatusDraft,
		domain.StatusSent,
		domain.StatusPendingSignatures,
	}
}

func nonTerminalStatuses() []domain.ContractStatus {
	return append(signableStatuses(), domain.StatusSigned)
}
