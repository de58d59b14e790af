package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Ologywood-Platform/ologywoodv5-sub000/internal/metrics"
	"github.com/Ologywood-Platform/ologywoodv5-sub000/pkg/certify"
	"github.com/Ologywood-Platform/ologywoodv5-sub000/pkg/domain"
	"github.com/Ologywood-Platform/ologywoodv5-sub000/pkg/lifecycle"
)

type idemRecord struct {
	status int
	body   map[string]any
}

// memStore implements both the lifecycle store and the api store with the
// same guard and uniqueness semantics as Postgres.
type memStore struct {
	contracts  map[string]domain.Contract
	signatures map[string]map[domain.Role]domain.Signature
	idem       map[string]idemRecord
}

func newMemStore() *memStore {
	return &memStore{
		contracts:  map[string]domain.Contract{},
		signatures: map[string]map[domain.Role]domain.Signature{},
		idem:       map[string]idemRecord{},
	}
}

func (m *memStore) CreateContract(ctx context.Context, c domain.Contract, event lifecycle.AuditEvent) error {
	m.contracts[c.ContractID] = c
	return nil
}

func (m *memStore) GetContract(ctx context.Context, contractID string) (domain.Contract, error) {
	c, ok := m.contracts[contractID]
	if !ok {
		return domain.Contract{}, lifecycle.ErrNotFound
	}
	return c, nil
}

func statusIn(status domain.ContractStatus, expect []domain.ContractStatus) bool {
	for _, st := range expect {
		if status == st {
			return true
		}
	}
	return false
}

func (m *memStore) ApplyTransition(ctx context.Context, contractID string, upd lifecycle.ContractUpdate, event lifecycle.AuditEvent) (domain.Contract, error) {
	c, ok := m.contracts[contractID]
	if !ok {
		return domain.Contract{}, lifecycle.ErrNotFound
	}
	if len(upd.ExpectStatus) > 0 && !statusIn(c.Status, upd.ExpectStatus) {
		return domain.Contract{}, lifecycle.ErrInvalidState
	}
	if upd.Status != nil {
		c.Status = *upd.Status
	}
	if upd.DocumentRef != nil {
		c.DocumentRef = upd.DocumentRef
	}
	m.contracts[contractID] = c
	return c, nil
}

func (m *memStore) RecordSignature(ctx context.Context, sig domain.Signature, expect []domain.ContractStatus, event lifecycle.AuditEvent) (domain.Contract, error) {
	c, ok := m.contracts[sig.ContractID]
	if !ok {
		return domain.Contract{}, lifecycle.ErrNotFound
	}
	if !statusIn(c.Status, expect) {
		return domain.Contract{}, lifecycle.ErrInvalidState
	}
	byRole, ok := m.signatures[sig.ContractID]
	if !ok {
		byRole = map[domain.Role]domain.Signature{}
		m.signatures[sig.ContractID] = byRole
	}
	if _, exists := byRole[sig.SignerRole]; exists {
		return domain.Contract{}, lifecycle.ErrAlreadySigned
	}
	byRole[sig.SignerRole] = sig
	signedAt := sig.SignedAt
	switch sig.SignerRole {
	case domain.RoleArtist:
		c.ArtistSignedAt = &signedAt
	case domain.RoleVenue:
		c.VenueSignedAt = &signedAt
	}
	if c.ArtistSignedAt != nil && c.VenueSignedAt != nil {
		c.Status = domain.StatusSigned
	} else {
		c.Status = domain.StatusPendingSignatures
	}
	m.contracts[sig.ContractID] = c
	return c, nil
}

func (m *memStore) GetSignature(ctx context.Context, contractID string, signerRole domain.Role) (domain.Signature, error) {
	sig, ok := m.signatures[contractID][signerRole]
	if !ok {
		return domain.Signature{}, lifecycle.ErrNotFound
	}
	return sig, nil
}

func (m *memStore) ListSignatures(ctx context.Context, contractID string) ([]domain.Signature, error) {
	var out []domain.Signature
	for _, sig := range m.signatures[contractID] {
		out = append(out, sig)
	}
	return out, nil
}

func (m *memStore) AppendEvent(ctx context.Context, contractID string, event lifecycle.AuditEvent) error {
	return nil
}

func (m *memStore) GetIdempotencyRecord(ctx context.Context, userID, idempotencyKey, endpoint string) (int, map[string]any, bool, error) {
	rec, ok := m.idem[userID+"|"+idempotencyKey+"|"+endpoint]
	if !ok {
		return 0, nil, false, nil
	}
	return rec.status, rec.body, true, nil
}

func (m *memStore) SaveIdempotencyRecord(ctx context.Context, userID, idempotencyKey, endpoint string, responseStatus int, responseBody map[string]any) error {
	m.idem[userID+"|"+idempotencyKey+"|"+endpoint] = idemRecord{status: responseStatus, body: responseBody}
	return nil
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, string, string) {}

func newTestServer(t *testing.T) (http.Handler, *memStore, *certify.Issuer) {
	t.Helper()
	issuer, err := certify.NewIssuer([]byte("test-secret"))
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	st := newMemStore()
	engine := lifecycle.NewEngine(st, noopNotifier{}, issuer)
	h := NewHandler(engine, issuer, st, metrics.New(prometheus.NewRegistry()))
	r := chi.NewRouter()
	r.Route("/v1", h.Routes)
	return r, st, issuer
}

func seedContract(st *memStore, status domain.ContractStatus) {
	st.contracts["ctr_1"] = domain.Contract{
		ContractID:   "ctr_1",
		BookingID:    "bkg_1",
		ArtistUserID: "usr_artist",
		VenueUserID:  "usr_venue",
		Type:         domain.TypePerformance,
		Title:        "Summer set",
		Content:      "terms",
		Status:       status,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("content-type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

const signBodyArtist = `{
  "actor_context": {"user_id": "usr_artist", "role": "artist"},
  "signer": {"name": "Ada Artist", "email": "ada@example.com"},
  "signature": {"payload": "data:image/png;base64,aWJveA==", "method": "drawn"}
}`

func TestSignEndpoint(t *testing.T) {
	h, st, _ := newTestServer(t)
	seedContract(st, domain.StatusDraft)

	rec, body := doJSON(t, h, http.MethodPost, "/v1/contracts/ctr_1/sign", signBodyArtist)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	cert, ok := body["certificate"].(map[string]any)
	if !ok {
		t.Fatalf("missing certificate in response: %v", body)
	}
	number, _ := cert["certificate_number"].(string)
	if !strings.HasPrefix(number, "SIG-") {
		t.Fatalf("unexpected certificate number: %q", number)
	}
	contract, _ := body["contract"].(map[string]any)
	if contract["status"] != string(domain.StatusPendingSignatures) {
		t.Fatalf("unexpected status: %v", contract["status"])
	}
}

func TestSignEndpointDuplicate(t *testing.T) {
	h, st, _ := newTestServer(t)
	seedContract(st, domain.StatusDraft)

	if rec, _ := doJSON(t, h, http.MethodPost, "/v1/contracts/ctr_1/sign", signBodyArtist); rec.Code != http.StatusOK {
		t.Fatalf("first sign: %d", rec.Code)
	}
	rec, body := doJSON(t, h, http.MethodPost, "/v1/contracts/ctr_1/sign", signBodyArtist)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate sign status %d", rec.Code)
	}
	errObj, _ := body["error"].(map[string]any)
	if errObj["code"] != "ALREADY_SIGNED" {
		t.Fatalf("unexpected error code: %v", errObj)
	}
}

func TestSignEndpointForbidden(t *testing.T) {
	h, st, _ := newTestServer(t)
	seedContract(st, domain.StatusDraft)

	body := `{
  "actor_context": {"user_id": "usr_stranger", "role": "artist"},
  "signer": {"name": "S", "email": "s@example.com"},
  "signature": {"payload": "xx", "method": "typed"}
}`
	rec, decoded := doJSON(t, h, http.MethodPost, "/v1/contracts/ctr_1/sign", body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	errObj, _ := decoded["error"].(map[string]any)
	if errObj["code"] != "FORBIDDEN" {
		t.Fatalf("unexpected error code: %v", errObj)
	}
}

func TestSignEndpointMissingContract(t *testing.T) {
	h, _, _ := newTestServer(t)
	rec, _ := doJSON(t, h, http.MethodPost, "/v1/contracts/ctr_missing/sign", signBodyArtist)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestSignEndpointIdempotentReplay(t *testing.T) {
	h, st, _ := newTestServer(t)
	seedContract(st, domain.StatusDraft)

	body := `{
  "actor_context": {"user_id": "usr_artist", "role": "artist", "idempotency_key": "k1"},
  "signer": {"name": "Ada Artist", "email": "ada@example.com"},
  "signature": {"payload": "data:image/png;base64,aWJveA==", "method": "drawn"}
}`
	rec1, body1 := doJSON(t, h, http.MethodPost, "/v1/contracts/ctr_1/sign", body)
	if rec1.Code != http.StatusOK {
		t.Fatalf("first sign: %d %s", rec1.Code, rec1.Body.String())
	}
	rec2, body2 := doJSON(t, h, http.MethodPost, "/v1/contracts/ctr_1/sign", body)
	if rec2.Code != http.StatusOK {
		t.Fatalf("replayed sign must return the stored response, got %d", rec2.Code)
	}
	c1, _ := body1["certificate"].(map[string]any)
	c2, _ := body2["certificate"].(map[string]any)
	if c1["certificate_number"] != c2["certificate_number"] {
		t.Fatalf("replay must return the original certificate")
	}
	if len(st.signatures["ctr_1"]) != 1 {
		t.Fatalf("replay must not record a second signature")
	}
}

func TestRejectEndpoint(t *testing.T) {
	h, st, _ := newTestServer(t)
	seedContract(st, domain.StatusPendingSignatures)

	body := `{"actor_context": {"user_id": "usr_venue", "role": "venue"}, "reason": "terms"}`
	rec, decoded := doJSON(t, h, http.MethodPost, "/v1/contracts/ctr_1/reject", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	contract, _ := decoded["contract"].(map[string]any)
	if contract["status"] != string(domain.StatusCancelled) {
		t.Fatalf("unexpected status: %v", contract["status"])
	}
}

func TestCancelTerminalInvalidState(t *testing.T) {
	h, st, _ := newTestServer(t)
	seedContract(st, domain.StatusCancelled)

	body := `{"actor_context": {"user_id": "usr_venue", "role": "venue"}, "reason": "again"}`
	rec, decoded := doJSON(t, h, http.MethodPost, "/v1/contracts/ctr_1/cancel", body)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d", rec.Code)
	}
	errObj, _ := decoded["error"].(map[string]any)
	if errObj["code"] != "INVALID_STATE" {
		t.Fatalf("unexpected error code: %v", errObj)
	}
}

func TestApproveEndpointAdminOnly(t *testing.T) {
	h, st, _ := newTestServer(t)
	seedContract(st, domain.StatusSigned)

	partyBody := `{"actor_context": {"user_id": "usr_venue", "role": "venue"}, "notes": "ok"}`
	if rec, _ := doJSON(t, h, http.MethodPost, "/v1/contracts/ctr_1/approve", partyBody); rec.Code != http.StatusForbidden {
		t.Fatalf("party approve status %d", rec.Code)
	}
	adminBody := `{"actor_context": {"user_id": "usr_admin", "role": "admin"}, "notes": "reviewed"}`
	if rec, _ := doJSON(t, h, http.MethodPost, "/v1/contracts/ctr_1/approve", adminBody); rec.Code != http.StatusOK {
		t.Fatalf("admin approve status %d", rec.Code)
	}
}

func TestActionsEndpoint(t *testing.T) {
	h, st, _ := newTestServer(t)
	seedContract(st, domain.StatusDraft)

	rec, decoded := doJSON(t, h, http.MethodGet, "/v1/contracts/ctr_1/actions?user_id=usr_artist&role=artist", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	actions, _ := decoded["actions"].([]any)
	if len(actions) == 0 {
		t.Fatalf("expected actions for a draft contract party")
	}
}

func TestVerifyEndpointRoundTripAndTamper(t *testing.T) {
	h, st, _ := newTestServer(t)
	seedContract(st, domain.StatusDraft)

	if rec, _ := doJSON(t, h, http.MethodPost, "/v1/contracts/ctr_1/sign", signBodyArtist); rec.Code != http.StatusOK {
		t.Fatalf("sign: %d", rec.Code)
	}

	rec, decoded := doJSON(t, h, http.MethodPost, "/v1/contracts/ctr_1/signatures/artist/verify",
		`{"payload": "data:image/png;base64,aWJveA=="}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status %d: %s", rec.Code, rec.Body.String())
	}
	result, _ := decoded["result"].(map[string]any)
	if result["valid"] != true {
		t.Fatalf("round trip must verify: %v", result)
	}

	rec, decoded = doJSON(t, h, http.MethodPost, "/v1/contracts/ctr_1/signatures/artist/verify",
		`{"payload": "forged"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify status %d", rec.Code)
	}
	result, _ = decoded["result"].(map[string]any)
	if result["valid"] != false || result["tamper_detected"] != true {
		t.Fatalf("forged payload must report tampering: %v", result)
	}
}

func TestVerifyEndpointMissingSignature(t *testing.T) {
	h, st, _ := newTestServer(t)
	seedContract(st, domain.StatusDraft)
	rec, _ := doJSON(t, h, http.MethodPost, "/v1/contracts/ctr_1/signatures/venue/verify", `{"payload": "x"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestVerifyBatchEndpoint(t *testing.T) {
	h, _, issuer := newTestServer(t)
	cert, err := issuer.Capture(certify.CaptureInput{
		SignerName:  "Ada Artist",
		SignerEmail: "ada@example.com",
		SignerRole:  "artist",
		ContractID:  "ctr_1",
		Payload:     []byte("payload"),
		CapturedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	certJSON, _ := json.Marshal([]certify.Certificate{cert})

	body := `{"certificates": ` + string(certJSON) + `, "payloads": {}}`
	rec, decoded := doJSON(t, h, http.MethodPost, "/v1/signatures/verify-batch", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	results, _ := decoded["results"].([]any)
	if len(results) != 1 {
		t.Fatalf("expected one result: %v", decoded)
	}
	first, _ := results[0].(map[string]any)
	if first["valid"] != false || first["reason"] != certify.ReasonPayloadNotProvided {
		t.Fatalf("missing payload result: %v", first)
	}
}

func TestExpiringCheckEndpoint(t *testing.T) {
	h, _, issuer := newTestServer(t)
	cert, err := issuer.Capture(certify.CaptureInput{
		SignerEmail: "ada@example.com",
		ContractID:  "ctr_1",
		Payload:     []byte("payload"),
		CapturedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	certJSON, _ := json.Marshal(cert)

	rec, decoded := doJSON(t, h, http.MethodPost, "/v1/signatures/expiring-check",
		`{"certificate": `+string(certJSON)+`, "days": 30}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if decoded["expiring_soon"] != false {
		t.Fatalf("fresh certificate is not expiring soon: %v", decoded)
	}
}
