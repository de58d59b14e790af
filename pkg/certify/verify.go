package certify

import (
	"time"

	"github.com/Ologywood-Platform/ologywoodv5-sub000/pkg/sigdigest"
)

// Verification reasons. Expiry alone is not evidence of fraud, so expired
// certificates report TamperDetected=false.
const (
	ReasonExpired              = "expired"
	ReasonContentHashMismatch  = "content hash mismatch"
	ReasonVerificationMismatch = "verification hash mismatch"
	ReasonPayloadNotProvided   = "payload not provided"
)

// Result is a verification outcome. Invalid signatures are an expected,
// frequently-checked condition, so outcomes are returned as data rather
// than errors.
type Result struct {
	CertificateNumber string `json:"certificate_number"`
	Valid             bool   `json:"valid"`
	TamperDetected    bool   `json:"tamper_detected"`
	Reason            string `json:"reason,omitempty"`
}

// Verify checks a candidate payload against a certificate. Expiry is checked
// first and reported without a tamper flag; after that, both the content
// hash and the keyed verification hash must reproduce exactly, and any
// mismatch is reported as tampering.
func (i *Issuer) Verify(cert Certificate, candidatePayload []byte) Result {
	res := Result{CertificateNumber: cert.CertificateNumber}

	if i.now().After(cert.ExpiresAt) {
		res.Reason = ReasonExpired
		return res
	}

	contentOK := sigdigest.EqualHex(sigdigest.SHA256Hex(candidatePayload), cert.ContentHash)
	recomputed := i.verificationHash(cert.ContentHash, cert.IssuedAt, cert.SignerEmail, cert.ContractID)
	verificationOK := sigdigest.EqualHex(recomputed, cert.VerificationHash)

	res.Valid = contentOK && verificationOK
	if !res.Valid {
		res.TamperDetected = true
		if !contentOK {
			res.Reason = ReasonContentHashMismatch
		} else {
			res.Reason = ReasonVerificationMismatch
		}
	}
	return res
}

// BatchVerify applies Verify to each certificate, matching payloads by
// certificate number. A certificate without a supplied payload yields an
// invalid result with reason "payload not provided" rather than an error.
func (i *Issuer) BatchVerify(certs []Certificate, payloadsByCertNumber map[string][]byte) []Result {
	out := make([]Result, 0, len(certs))
	for _, cert := range certs {
		payload, ok := payloadsByCertNumber[cert.CertificateNumber]
		if !ok {
			out = append(out, Result{
				CertificateNumber: cert.CertificateNumber,
				Reason:            ReasonPayloadNotProvided,
			})
			continue
		}
		out = append(out, i.Verify(cert, payload))
	}
	return out
}

// ExpiringSoon reports whether the certificate expires within the given
// number of days.
func (i *Issuer) ExpiringSoon(cert Certificate, daysThreshold int) bool {
	cutoff := i.now().Add(time.Duration(daysThreshold) * 24 * time.Hour)
	return !cert.ExpiresAt.After(cutoff)
}
