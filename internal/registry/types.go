package registry

import "intel-registry/internal/chainclock"

// ProofCommitment 是登记的证明承诺。除状态、证言数与平均置信度外不可变。
type ProofCommitment struct {
	ProofID          string    `json:"proof_id"`
	Commitment       string    `json:"commitment"`
	ProofType        ProofType `json:"proof_type"`
	SourceHash       string    `json:"source_hash"`
	IntelHash        string    `json:"intel_hash"`
	PublicInputsHash string    `json:"public_inputs_hash"`
	BlockHeight      uint64    `json:"block_height"`
	TimestampNs      int64     `json:"timestamp_ns"`
	Metadata         string    `json:"metadata,omitempty"`
	Status           Status    `json:"status"`
	AttestationCount uint32    `json:"attestation_count"`
	AvgConfidence    uint8     `json:"avg_confidence"`
	Sequence         uint64    `json:"sequence"`
}

// Attestation 是验证方对证明给出的置信度。
type Attestation struct {
	Attestor    string `json:"attestor"`
	Confidence  uint8  `json:"confidence"`
	BlockHeight uint64 `json:"block_height"`
	Note        string `json:"note,omitempty"`
}

// ProofWithAttestations 组合证明与其全部有效证言。
type ProofWithAttestations struct {
	Proof        ProofCommitment `json:"proof"`
	Attestations []Attestation   `json:"attestations"`
}

// SourceStats 是单个来源的滚动计数器。
type SourceStats struct {
	TotalProofs       uint64 `json:"total_proofs"`
	TotalAttestations uint64 `json:"total_attestations"`
	ConfidenceSum     uint64 `json:"confidence_sum"`
	VerifiedCount     uint64 `json:"verified_count"`
	RefutedCount      uint64 `json:"refuted_count"`
	FirstProofHeight  uint64 `json:"first_proof_height"`
	LastProofHeight   uint64 `json:"last_proof_height"`
}

// Totals 是登记簿的全局计数。
type Totals struct {
	TotalProofs       uint64 `json:"total_proofs"`
	TotalAttestations uint64 `json:"total_attestations"`
}

// Call 携带宿主提供的调用上下文：已认证的调用方与时钟读数。
//
// Tick 为零值且登记簿配置了时钟时，登记簿在持有写锁期间取时。
type Call struct {
	Caller string
	Tick   chainclock.Tick
}

// RegisterRequest 是登记证明的参数。
type RegisterRequest struct {
	ProofID          string    `json:"proof_id" validate:"required,maxbytes=64"`
	Commitment       string    `json:"commitment" validate:"hash64"`
	ProofType        ProofType `json:"proof_type" validate:"prooftype"`
	SourceHash       string    `json:"source_hash" validate:"hash64"`
	IntelHash        string    `json:"intel_hash" validate:"hash64"`
	PublicInputsHash string    `json:"public_inputs_hash" validate:"hash64"`
	Metadata         string    `json:"metadata,omitempty" validate:"maxbytes=500"`
}

// AttestRequest 是提交证言的参数。
type AttestRequest struct {
	ProofID    string `json:"proof_id"`
	Confidence int    `json:"confidence" validate:"min=1,max=100"`
	Note       string `json:"note,omitempty" validate:"maxbytes=200"`
}

// RefuteRequest 是驳回证明的参数。
type RefuteRequest struct {
	ProofID string `json:"proof_id"`
	Reason  string `json:"reason" validate:"maxbytes=500"`
}

// AttestResult 描述一次证言提交的结果。
type AttestResult struct {
	Proof    ProofCommitment `json:"proof"`
	Replaced bool            `json:"replaced"`
}
