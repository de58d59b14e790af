package certify

import (
	"errors"
	"regexp"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func testIssuer(t *testing.T, now *time.Time) *Issuer {
	t.Helper()
	issuer, err := NewIssuer([]byte("test-secret"), WithNow(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	return issuer
}

func capture(t *testing.T, issuer *Issuer, payload string) Certificate {
	t.Helper()
	cert, err := issuer.Capture(CaptureInput{
		SignerName:  "Ada Artist",
		SignerEmail: "ada@example.com",
		SignerRole:  "artist",
		ContractID:  "ctr_1",
		Payload:     []byte(payload),
		CapturedAt:  t0,
	})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	return cert
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	if _, err := NewIssuer(nil); !errors.Is(err, ErrEmptySecret) {
		t.Fatalf("expected ErrEmptySecret, got %v", err)
	}
}

func TestCaptureRejectsEmptyPayload(t *testing.T) {
	now := t0
	issuer := testIssuer(t, &now)
	_, err := issuer.Capture(CaptureInput{
		SignerEmail: "ada@example.com",
		ContractID:  "ctr_1",
		CapturedAt:  t0,
	})
	if !errors.Is(err, ErrEmptyPayload) {
		t.Fatalf("expected ErrEmptyPayload, got %v", err)
	}
}

func TestCaptureRejectsMissingSignerEmail(t *testing.T) {
	now := t0
	issuer := testIssuer(t, &now)
	_, err := issuer.Capture(CaptureInput{
		ContractID: "ctr_1",
		Payload:    []byte("sig"),
		CapturedAt: t0,
	})
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
}

func TestCertificateNumberFormat(t *testing.T) {
	now := t0
	cert := capture(t, testIssuer(t, &now), "payload")
	matched, err := regexp.MatchString(`^SIG-[0-9a-z]+-[0-9a-f]{8}$`, cert.CertificateNumber)
	if err != nil || !matched {
		t.Fatalf("unexpected certificate number: %s", cert.CertificateNumber)
	}
}

func TestCaptureSetsValidityWindow(t *testing.T) {
	now := t0
	cert := capture(t, testIssuer(t, &now), "payload")
	if !cert.IssuedAt.Equal(t0) {
		t.Fatalf("issued at: %v", cert.IssuedAt)
	}
	if want := t0.Add(365 * 24 * time.Hour); !cert.ExpiresAt.Equal(want) {
		t.Fatalf("expires at %v, want %v", cert.ExpiresAt, want)
	}
}

func TestCaptureDeterministicHashes(t *testing.T) {
	now := t0
	issuer := testIssuer(t, &now)
	a := capture(t, issuer, "payload")
	b := capture(t, issuer, "payload")
	if a.ContentHash != b.ContentHash || a.VerificationHash != b.VerificationHash {
		t.Fatalf("same inputs must reproduce both hashes")
	}
	if a.CertificateNumber == b.CertificateNumber {
		t.Fatalf("freshly minted certificate numbers must differ")
	}
}

func TestRederiveReusesCertificateNumber(t *testing.T) {
	now := t0
	issuer := testIssuer(t, &now)
	orig := capture(t, issuer, "payload")

	rederived, err := issuer.Capture(CaptureInput{
		SignerName:        orig.SignerName,
		SignerEmail:       orig.SignerEmail,
		SignerRole:        orig.SignerRole,
		ContractID:        orig.ContractID,
		Payload:           []byte("payload"),
		CapturedAt:        orig.IssuedAt,
		CertificateNumber: orig.CertificateNumber,
	})
	if err != nil {
		t.Fatalf("rederive: %v", err)
	}
	if rederived != orig {
		t.Fatalf("rederived certificate differs:\n%+v\n%+v", rederived, orig)
	}
}

func TestVerificationHashIsKeyed(t *testing.T) {
	now := t0
	a := capture(t, testIssuer(t, &now), "payload")

	other, err := NewIssuer([]byte("different-secret"), WithNow(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	b, err := other.Capture(CaptureInput{
		SignerName:  "Ada Artist",
		SignerEmail: "ada@example.com",
		SignerRole:  "artist",
		ContractID:  "ctr_1",
		Payload:     []byte("payload"),
		CapturedAt:  t0,
	})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if a.ContentHash != b.ContentHash {
		t.Fatalf("content hash does not depend on the secret")
	}
	if a.VerificationHash == b.VerificationHash {
		t.Fatalf("verification hash must depend on the secret")
	}
}
