// Package certify produces and checks the cryptographic evidence attached to
// captured contract signatures: a SHA-256 content hash of the signature
// payload and a keyed HMAC-SHA256 verification hash binding that content
// hash to the signer, the contract and the capture time. Certificates are
// derivable on demand from a stored signature plus the server secret; they
// are never persisted on their own.
package certify

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Ologywood-Platform/ologywoodv5-sub000/pkg/sigdigest"
)

// DefaultValidity is the policy validity window for issued certificates.
const DefaultValidity = 365 * 24 * time.Hour

var (
	ErrEmptySecret  = errors.New("certify: signing secret is empty")
	ErrEmptyPayload = errors.New("certify: signature payload is empty")
	ErrMissingField = errors.New("certify: signer email and contract id are required")
)

// Certificate is the evidence issued for one captured signature. Hash fields
// are lowercase hex; outside this package they are opaque strings.
type Certificate struct {
	CertificateNumber string    `json:"certificate_number"`
	SignerName        string    `json:"signer_name"`
	SignerEmail       string    `json:"signer_email"`
	SignerRole        string    `json:"signer_role"`
	ContractID        string    `json:"contract_id"`
	ContentHash       string    `json:"content_hash"`
	VerificationHash  string    `json:"verification_hash"`
	IssuedAt          time.Time `json:"issued_at"`
	ExpiresAt         time.Time `json:"expires_at"`
}

// CaptureInput carries everything Capture needs. CapturedAt is the moment
// the signature was taken; it becomes the certificate issuance time.
// CertificateNumber reuses an existing number when re-deriving the
// certificate of a stored signature; empty mints a new one.
type CaptureInput struct {
	SignerName        string
	SignerEmail       string
	SignerRole        string
	ContractID        string
	Payload           []byte
	CapturedAt        time.Time
	CertificateNumber string
}

// Issuer computes and checks certificates under a server-side secret.
// All operations are deterministic given their inputs and the secret.
type Issuer struct {
	secret   []byte
	validity time.Duration
	now      func() time.Time
}

// Option adjusts issuer policy.
type Option func(*Issuer)

// WithValidity overrides the default 365-day validity window.
func WithValidity(d time.Duration) Option {
	return func(i *Issuer) {
		if d > 0 {
			i.validity = d
		}
	}
}

// WithNow injects the clock used for expiry decisions.
func WithNow(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}

func NewIssuer(secret []byte, opts ...Option) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	i := &Issuer{
		secret:   secret,
		validity: DefaultValidity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Capture issues a certificate for a signature payload. The same inputs and
// secret always reproduce the same content and verification hashes, which is
// what makes stored signatures re-verifiable without persisting the
// certificate itself.
func (i *Issuer) Capture(in CaptureInput) (Certificate, error) {
	if len(in.Payload) == 0 {
		return Certificate{}, ErrEmptyPayload
	}
	if strings.TrimSpace(in.SignerEmail) == "" || strings.TrimSpace(in.ContractID) == "" {
		return Certificate{}, ErrMissingField
	}
	issuedAt := in.CapturedAt.UTC()
	if issuedAt.IsZero() {
		issuedAt = i.now().UTC()
	}

	number := in.CertificateNumber
	if number == "" {
		number = newCertificateNumber(issuedAt)
	}
	contentHash := sigdigest.SHA256Hex(in.Payload)
	cert := Certificate{
		CertificateNumber: number,
		SignerName:        in.SignerName,
		SignerEmail:       in.SignerEmail,
		SignerRole:        in.SignerRole,
		ContractID:        in.ContractID,
		ContentHash:       contentHash,
		VerificationHash:  i.verificationHash(contentHash, issuedAt, in.SignerEmail, in.ContractID),
		IssuedAt:          issuedAt,
		ExpiresAt:         issuedAt.Add(i.validity),
	}
	return cert, nil
}

// verificationHash binds the content hash to the signer and contract under
// the server secret. Without the secret a valid certificate cannot be forged
// even knowing the content hash algorithm.
func (i *Issuer) verificationHash(contentHash string, issuedAt time.Time, signerEmail, contractID string) string {
	var b strings.Builder
	b.WriteString(contentHash)
	b.WriteString("\n")
	b.WriteString(issuedAt.UTC().Format(time.RFC3339Nano))
	b.WriteString("\n")
	b.WriteString(signerEmail)
	b.WriteString("\n")
	b.WriteString(contractID)
	return sigdigest.HMACSHA256Hex(i.secret, []byte(b.String()))
}

// newCertificateNumber builds a human-readable certificate number from a
// base36 millisecond timestamp plus random bytes: SIG-<base36>-<hex>.
func newCertificateNumber(issuedAt time.Time) string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("SIG-%s-%s",
		strconv.FormatInt(issuedAt.UnixMilli(), 36),
		hex.EncodeToString(buf),
	)
}
