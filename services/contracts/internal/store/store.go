// Package store is the Postgres storage collaborator for the contract
// lifecycle. The at-most-one-signature-per-(contract, party) invariant is
// backed by a unique index on signatures (contract_id, signer_role); status
// writes carry an expected-status guard so concurrent transitions cannot
// both succeed. Each transition commits its row changes and its audit event
// in one transaction.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Ologywood-Platform/ologywoodv5-sub000/pkg/domain"
	"github.com/Ologywood-Platform/ologywoodv5-sub000/pkg/lifecycle"
)

const uniqueViolation = "23505"

type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

const contractColumns = `contract_id,booking_id,artist_user_id,venue_user_id,contract_type,title,content,status,artist_signed_at,venue_signed_at,document_ref,created_at,updated_at`

func scanContract(row pgx.Row) (domain.Contract, error) {
	var c domain.Contract
	err := row.Scan(
		&c.ContractID, &c.BookingID, &c.ArtistUserID, &c.VenueUserID,
		&c.Type, &c.Title, &c.Content, &c.Status,
		&c.ArtistSignedAt, &c.VenueSignedAt, &c.DocumentRef,
		&c.CreatedAt, &c.UpdatedAt,
	)
	return c, err
}

// execer covers both the pool and an open transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func appendEvent(ctx context.Context, q execer, contractID string, event lifecycle.AuditEvent) error {
	details := event.Details
	if details == nil {
		details = map[string]any{}
	}
	b, _ := json.Marshal(details)
	_, err := q.Exec(ctx, `
INSERT INTO contract_events(contract_id,kind,actor_user_id,details,created_at)
VALUES($1,$2,$3,$4::jsonb,now())`,
		contractID, event.Kind, event.ActorUserID, string(b))
	return err
}

func (s *Store) CreateContract(ctx context.Context, c domain.Contract, event lifecycle.AuditEvent) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
INSERT INTO contracts(contract_id,booking_id,artist_user_id,venue_user_id,contract_type,title,content,status)
VALUES($1,$2,$3,$4,$5,$6,$7,$8)`,
		c.ContractID, c.BookingID, c.ArtistUserID, c.VenueUserID, c.Type, c.Title, c.Content, c.Status); err != nil {
		return err
	}
	if err := appendEvent(ctx, tx, c.ContractID, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetContract(ctx context.Context, contractID string) (domain.Contract, error) {
	c, err := scanContract(s.DB.QueryRow(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE contract_id=$1`, contractID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Contract{}, lifecycle.ErrNotFound
	}
	return c, err
}

// ApplyTransition applies a guarded partial update and appends the audit
// event in the same transaction. With an ExpectStatus guard the update only
// matches while the stored status is one of the listed values; a guard miss
// on an existing contract surfaces as ErrInvalidState.
func (s *Store) ApplyTransition(ctx context.Context, contractID string, upd lifecycle.ContractUpdate, event lifecycle.AuditEvent) (domain.Contract, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return domain.Contract{}, err
	}
	defer tx.Rollback(ctx)

	sets := []string{"updated_at=now()"}
	args := []any{contractID}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s=$%d", col, len(args)))
	}
	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.DocumentRef != nil {
		add("document_ref", *upd.DocumentRef)
	}

	where := "contract_id=$1"
	if len(upd.ExpectStatus) > 0 {
		args = append(args, statusStrings(upd.ExpectStatus))
		where += fmt.Sprintf(" AND status=ANY($%d)", len(args))
	}

	query := `UPDATE contracts SET ` + strings.Join(sets, ",") +
		` WHERE ` + where + ` RETURNING ` + contractColumns
	c, err := scanContract(tx.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		// Distinguish a missing contract from a guard miss.
		if _, getErr := s.GetContract(ctx, contractID); getErr != nil {
			return domain.Contract{}, getErr
		}
		return domain.Contract{}, lifecycle.ErrInvalidState
	}
	if err != nil {
		return domain.Contract{}, err
	}
	if err := appendEvent(ctx, tx, contractID, event); err != nil {
		return domain.Contract{}, err
	}
	return c, tx.Commit(ctx)
}

// RecordSignature inserts the signature, stamps the signing party's
// timestamp and appends the audit event in one transaction. Status is
// derived from the row as written, so a signature racing the other party's
// still lands on signed; a guard miss rolls the insert back and leaves no
// signature behind.
func (s *Store) RecordSignature(ctx context.Context, sig domain.Signature, expect []domain.ContractStatus, event lifecycle.AuditEvent) (domain.Contract, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return domain.Contract{}, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
INSERT INTO signatures(signature_id,contract_id,signer_user_id,signer_role,signer_name,signer_email,payload,method,signed_at,ip_address,user_agent,verify_token)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		sig.SignatureID, sig.ContractID, sig.SignerUserID, sig.SignerRole,
		sig.SignerName, sig.SignerEmail, sig.Payload, sig.Method,
		sig.SignedAt, sig.IPAddress, sig.UserAgent, sig.VerifyToken)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.Contract{}, lifecycle.ErrAlreadySigned
	}
	if err != nil {
		return domain.Contract{}, err
	}

	signedCol, otherCol := "artist_signed_at", "venue_signed_at"
	if sig.SignerRole == domain.RoleVenue {
		signedCol, otherCol = otherCol, signedCol
	}
	query := `UPDATE contracts SET ` + signedCol + `=$2, updated_at=now(),
status=CASE WHEN ` + otherCol + ` IS NOT NULL THEN 'signed' ELSE 'pending_signatures' END
WHERE contract_id=$1 AND status=ANY($3) RETURNING ` + contractColumns
	c, err := scanContract(tx.QueryRow(ctx, query, sig.ContractID, sig.SignedAt, statusStrings(expect)))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.GetContract(ctx, sig.ContractID); getErr != nil {
			return domain.Contract{}, getErr
		}
		return domain.Contract{}, lifecycle.ErrInvalidState
	}
	if err != nil {
		return domain.Contract{}, err
	}
	if err := appendEvent(ctx, tx, sig.ContractID, event); err != nil {
		return domain.Contract{}, err
	}
	return c, tx.Commit(ctx)
}

func statusStrings(statuses []domain.ContractStatus) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

const signatureColumns = `signature_id,contract_id,signer_user_id,signer_role,signer_name,signer_email,payload,method,signed_at,ip_address,user_agent,verify_token`

func scanSignature(row pgx.Row) (domain.Signature, error) {
	var sig domain.Signature
	err := row.Scan(
		&sig.SignatureID, &sig.ContractID, &sig.SignerUserID, &sig.SignerRole,
		&sig.SignerName, &sig.SignerEmail, &sig.Payload, &sig.Method,
		&sig.SignedAt, &sig.IPAddress, &sig.UserAgent, &sig.VerifyToken,
	)
	return sig, err
}

func (s *Store) GetSignature(ctx context.Context, contractID string, signerRole domain.Role) (domain.Signature, error) {
	sig, err := scanSignature(s.DB.QueryRow(ctx,
		`SELECT `+signatureColumns+` FROM signatures WHERE contract_id=$1 AND signer_role=$2`,
		contractID, signerRole))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Signature{}, lifecycle.ErrNotFound
	}
	return sig, err
}

func (s *Store) ListSignatures(ctx context.Context, contractID string) ([]domain.Signature, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT `+signatureColumns+` FROM signatures WHERE contract_id=$1 ORDER BY signed_at`,
		contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Signature
	for rows.Next() {
		sig, err := scanSignature(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

func (s *Store) AppendEvent(ctx context.Context, contractID string, event lifecycle.AuditEvent) error {
	return appendEvent(ctx, s.DB, contractID, event)
}
