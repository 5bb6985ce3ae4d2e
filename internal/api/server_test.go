package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intel-registry/internal/chainclock"
	"intel-registry/internal/identity"
	"intel-registry/internal/observability/metrics"
	"intel-registry/internal/registry"
	"intel-registry/internal/storage"
)

func hashOf(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

type testEnv struct {
	server  *httptest.Server
	metrics *metrics.Recorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	reg, err := registry.New(context.Background(), storage.NewMemoryStore(), registry.Options{
		Owner: "owner",
		Clock: chainclock.NewLocalClock(100),
	})
	require.NoError(t, err)
	rec := metrics.New()
	srv := httptest.NewServer(NewServer(reg, Options{Metrics: rec}).Handler())
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, metrics: rec}
}

func (e *testEnv) do(t *testing.T, method, path, caller string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if caller != "" {
		req.Header.Set(identity.DefaultHeader, caller)
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func registerBody(id string) map[string]any {
	return map[string]any{
		"proof_id":           id,
		"commitment":         hashOf("c-" + id),
		"proof_type":         "SatelliteImagery",
		"source_hash":        hashOf("source"),
		"intel_hash":         hashOf("intel-" + id),
		"public_inputs_hash": hashOf("in-" + id),
		"metadata":           "pass 3",
	}
}

func TestRegisterAndFetchProof(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/proofs", "publisher", registerBody("p-1"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[registry.ProofCommitment](t, resp)
	assert.Equal(t, registry.ProofTypeSatelliteImagery, created.ProofType)
	assert.Equal(t, uint64(101), created.BlockHeight)

	resp = env.do(t, http.MethodGet, "/api/v1/proofs/p-1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[registry.ProofCommitment](t, resp)
	assert.Equal(t, created, got)

	resp = env.do(t, http.MethodPost, "/api/v1/proofs", "publisher", registerBody("p-1"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	errBody := decode[ErrorResponse](t, resp)
	assert.Equal(t, "DUPLICATE_PROOF", errBody.Code)
}

func TestMutationsRequireIdentity(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/v1/proofs", "", registerBody("p-1"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestValidationErrors(t *testing.T) {
	env := newTestEnv(t)

	body := registerBody("p-1")
	body["intel_hash"] = "xyz"
	resp := env.do(t, http.MethodPost, "/api/v1/proofs", "publisher", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_FORMAT", decode[ErrorResponse](t, resp).Code)

	body = registerBody("p-1")
	body["proof_type"] = "Astrology"
	resp = env.do(t, http.MethodPost, "/api/v1/proofs", "publisher", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/proofs/p-1/attestations", "alice", map[string]any{"confidence": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_CONFIDENCE", decode[ErrorResponse](t, resp).Code)

	resp = env.do(t, http.MethodPost, "/api/v1/proofs/p-1/attestations", "alice", map[string]any{"confidence": 50})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decode[ErrorResponse](t, resp).Code)

	resp = env.do(t, http.MethodGet, "/api/v1/proofs?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAttestRefuteAndQueries(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 5; i++ {
		resp := env.do(t, http.MethodPost, "/api/v1/proofs", "publisher", registerBody(fmt.Sprintf("p-%d", i)))
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}
	for i, who := range []string{"alice", "bob", "carol"} {
		resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/proofs/p-%d/attestations", i), who, map[string]any{"confidence": 80, "note": "ok"})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		result := decode[registry.AttestResult](t, resp)
		assert.Equal(t, registry.StatusVerified, result.Proof.Status)
		assert.False(t, result.Replaced)
	}

	source := hashOf("source")
	resp := env.do(t, http.MethodGet, "/api/v1/sources/"+source+"/stats", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[registry.SourceStats](t, resp)
	assert.Equal(t, uint64(5), stats.TotalProofs)
	assert.Equal(t, uint64(240), stats.ConfidenceSum)

	resp = env.do(t, http.MethodGet, "/api/v1/sources/"+source+"/reputation", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, uint8(65), decode[ReputationResponse](t, resp).Reputation)

	resp = env.do(t, http.MethodPost, "/api/v1/proofs/p-0/refute", "mallory", map[string]any{"reason": "spam"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp = env.do(t, http.MethodPost, "/api/v1/proofs/p-0/refute", "owner", map[string]any{"reason": "forged"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, registry.StatusRefuted, decode[registry.ProofCommitment](t, resp).Status)

	resp = env.do(t, http.MethodGet, "/api/v1/proofs/p-0/attestations", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	full := decode[registry.ProofWithAttestations](t, resp)
	require.Len(t, full.Attestations, 1)
	assert.Equal(t, "alice", full.Attestations[0].Attestor)

	resp = env.do(t, http.MethodGet, "/api/v1/intel/"+strings.ToUpper(hashOf("intel-p-2"))+"/proofs", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	intel := decode[[]registry.ProofCommitment](t, resp)
	require.Len(t, intel, 1)
	assert.Equal(t, "p-2", intel[0].ProofID)

	resp = env.do(t, http.MethodGet, "/api/v1/proofs?limit=2", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	recent := decode[[]registry.ProofCommitment](t, resp)
	require.Len(t, recent, 2)
	assert.Equal(t, "p-4", recent[0].ProofID)
	assert.Equal(t, "p-3", recent[1].ProofID)

	resp = env.do(t, http.MethodPost, "/api/v1/proofs/p-1/verify", "auditor", VerifyRequest{Commitment: hashOf("c-p-1")})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[VerifyResponse](t, resp).Valid)

	resp = env.do(t, http.MethodGet, "/api/v1/stats", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, registry.Totals{TotalProofs: 5, TotalAttestations: 3}, decode[registry.Totals](t, resp))

	resp = env.do(t, http.MethodGet, "/api/v1/owner", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "owner", decode[map[string]string](t, resp)["owner"])
}

func TestVerifyRequiresIdentity(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodPost, "/api/v1/proofs/p-1/verify", "", VerifyRequest{Commitment: hashOf("x")})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env.do(t, http.MethodGet, "/api/v1/proofs/missing", "", nil)
	resp = env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var buf bytes.Buffer
	_, err := buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `intelreg_http_requests_total{code="404",handler="get_proof",method="GET"} 1`)
}

func TestMutationsAreRateLimitedPerCaller(t *testing.T) {
	reg, err := registry.New(context.Background(), storage.NewMemoryStore(), registry.Options{Owner: "owner"})
	require.NoError(t, err)
	srv := httptest.NewServer(NewServer(reg, Options{RateLimit: 0.001, RateBurst: 1}).Handler())
	defer srv.Close()
	env := &testEnv{server: srv}

	resp := env.do(t, http.MethodPost, "/api/v1/proofs", "publisher", registerBody("p-1"))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/proofs", "publisher", registerBody("p-2"))
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, string(CodeRateLimited), decode[ErrorResponse](t, resp).Code)

	resp = env.do(t, http.MethodPost, "/api/v1/proofs", "other", registerBody("p-2"))
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/proofs/p-1", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "reads are not limited")
}
