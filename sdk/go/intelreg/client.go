// Package intelreg is a Go client for the intel proof registry REST API.
package intelreg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// DefaultIdentityHeader is the header the registry reads the caller identity from.
const DefaultIdentityHeader = "X-Caller-Identity"

// Client wraps the HTTP interactions with the registry REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	header     string

	mu     sync.RWMutex
	caller string
}

// Proof mirrors a registered proof commitment.
type Proof struct {
	ProofID          string `json:"proof_id"`
	Commitment       string `json:"commitment"`
	ProofType        string `json:"proof_type"`
	SourceHash       string `json:"source_hash"`
	IntelHash        string `json:"intel_hash"`
	PublicInputsHash string `json:"public_inputs_hash"`
	BlockHeight      uint64 `json:"block_height"`
	TimestampNs      int64  `json:"timestamp_ns"`
	Metadata         string `json:"metadata,omitempty"`
	Status           string `json:"status"`
	AttestationCount uint32 `json:"attestation_count"`
	AvgConfidence    uint8  `json:"avg_confidence"`
	Sequence         uint64 `json:"sequence"`
}

// Attestation is one verifier's confidence in a proof.
type Attestation struct {
	Attestor    string `json:"attestor"`
	Confidence  uint8  `json:"confidence"`
	BlockHeight uint64 `json:"block_height"`
	Note        string `json:"note,omitempty"`
}

// ProofWithAttestations bundles a proof and its live attestations.
type ProofWithAttestations struct {
	Proof        Proof         `json:"proof"`
	Attestations []Attestation `json:"attestations"`
}

// AttestResult reports the proof state after an attestation.
type AttestResult struct {
	Proof    Proof `json:"proof"`
	Replaced bool  `json:"replaced"`
}

// SourceStats are the rolling counters kept per source hash.
type SourceStats struct {
	TotalProofs       uint64 `json:"total_proofs"`
	TotalAttestations uint64 `json:"total_attestations"`
	ConfidenceSum     uint64 `json:"confidence_sum"`
	VerifiedCount     uint64 `json:"verified_count"`
	RefutedCount      uint64 `json:"refuted_count"`
	FirstProofHeight  uint64 `json:"first_proof_height"`
	LastProofHeight   uint64 `json:"last_proof_height"`
}

// Totals are the registry-wide counters.
type Totals struct {
	TotalProofs       uint64 `json:"total_proofs"`
	TotalAttestations uint64 `json:"total_attestations"`
}

// RegisterRequest is the payload for registering a proof. ProofType takes the
// type name, e.g. "SatelliteImagery".
type RegisterRequest struct {
	ProofID          string `json:"proof_id"`
	Commitment       string `json:"commitment"`
	ProofType        string `json:"proof_type"`
	SourceHash       string `json:"source_hash"`
	IntelHash        string `json:"intel_hash"`
	PublicInputsHash string `json:"public_inputs_hash"`
	Metadata         string `json:"metadata,omitempty"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("intelreg api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("intelreg api error (%d): %s", e.StatusCode, e.Message)
}

// CodeOf returns the registry error code carried by err, or "" when err is
// not an API error.
func CodeOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// NewClient instantiates a client for the registry API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient, header: DefaultIdentityHeader}, nil
}

// SetIdentityHeader overrides the header used to send the caller identity.
func (c *Client) SetIdentityHeader(header string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.header = header
}

// SetCaller sets the identity sent with mutating requests.
func (c *Client) SetCaller(caller string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caller = caller
}

// Caller returns the currently configured identity.
func (c *Client) Caller() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.caller
}

// RegisterProof registers a new proof commitment.
func (c *Client) RegisterProof(ctx context.Context, req RegisterRequest) (Proof, error) {
	var proof Proof
	if err := c.post(ctx, "/api/v1/proofs", req, &proof); err != nil {
		return Proof{}, err
	}
	return proof, nil
}

// Attest submits or replaces the caller's attestation on a proof.
func (c *Client) Attest(ctx context.Context, proofID string, confidence int, note string) (AttestResult, error) {
	var result AttestResult
	body := map[string]any{"confidence": confidence, "note": note}
	if err := c.post(ctx, "/api/v1/proofs/"+proofID+"/attestations", body, &result); err != nil {
		return AttestResult{}, err
	}
	return result, nil
}

// RefuteProof marks a proof as refuted.
func (c *Client) RefuteProof(ctx context.Context, proofID, reason string) (Proof, error) {
	var proof Proof
	if err := c.post(ctx, "/api/v1/proofs/"+proofID+"/refute", map[string]string{"reason": reason}, &proof); err != nil {
		return Proof{}, err
	}
	return proof, nil
}

// VerifyCommitment reports whether commitment equals the registered one.
func (c *Client) VerifyCommitment(ctx context.Context, proofID, commitment string) (bool, error) {
	var out struct {
		Valid bool `json:"valid"`
	}
	if err := c.post(ctx, "/api/v1/proofs/"+proofID+"/verify", map[string]string{"commitment": commitment}, &out); err != nil {
		return false, err
	}
	return out.Valid, nil
}

// GetProof fetches a proof by id.
func (c *Client) GetProof(ctx context.Context, proofID string) (Proof, error) {
	var proof Proof
	if err := c.get(ctx, "/api/v1/proofs/"+proofID, nil, &proof); err != nil {
		return Proof{}, err
	}
	return proof, nil
}

// GetProofWithAttestations fetches a proof together with its attestations.
func (c *Client) GetProofWithAttestations(ctx context.Context, proofID string) (ProofWithAttestations, error) {
	var out ProofWithAttestations
	if err := c.get(ctx, "/api/v1/proofs/"+proofID+"/attestations", nil, &out); err != nil {
		return ProofWithAttestations{}, err
	}
	return out, nil
}

// GetRecentProofs lists up to limit proofs, highest block first.
func (c *Client) GetRecentProofs(ctx context.Context, limit int) ([]Proof, error) {
	var out []Proof
	query := url.Values{"limit": []string{strconv.Itoa(limit)}}
	if err := c.get(ctx, "/api/v1/proofs", query, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetIntelProofs lists the proofs linked to an intel hash.
func (c *Client) GetIntelProofs(ctx context.Context, intelHash string) ([]Proof, error) {
	var out []Proof
	if err := c.get(ctx, "/api/v1/intel/"+intelHash+"/proofs", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSourceStats fetches the counters of a source.
func (c *Client) GetSourceStats(ctx context.Context, sourceHash string) (SourceStats, error) {
	var out SourceStats
	if err := c.get(ctx, "/api/v1/sources/"+sourceHash+"/stats", nil, &out); err != nil {
		return SourceStats{}, err
	}
	return out, nil
}

// GetSourceReputation fetches the reputation score of a source.
func (c *Client) GetSourceReputation(ctx context.Context, sourceHash string) (uint8, error) {
	var out struct {
		Reputation uint8 `json:"reputation"`
	}
	if err := c.get(ctx, "/api/v1/sources/"+sourceHash+"/reputation", nil, &out); err != nil {
		return 0, err
	}
	return out.Reputation, nil
}

// GetStats fetches the registry-wide counters.
func (c *Client) GetStats(ctx context.Context) (Totals, error) {
	var out Totals
	if err := c.get(ctx, "/api/v1/stats", nil, &out); err != nil {
		return Totals{}, err
	}
	return out, nil
}

// Owner fetches the registry owner identity.
func (c *Client) Owner(ctx context.Context) (string, error) {
	var out struct {
		Owner string `json:"owner"`
	}
	if err := c.get(ctx, "/api/v1/owner", nil, &out); err != nil {
		return "", err
	}
	return out.Owner, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint), RawQuery: query.Encode()}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.mu.RLock()
	caller, header := c.caller, c.header
	c.mu.RUnlock()
	if method != http.MethodGet {
		if caller == "" {
			return nil, errors.New("intelreg: caller identity is not set")
		}
		req.Header.Set(header, caller)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
