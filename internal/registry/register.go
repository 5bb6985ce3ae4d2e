package registry

import (
	"context"
	"log/slog"
	"time"

	xerrors "intel-registry/internal/errors"
	"intel-registry/internal/events"
	"intel-registry/pkg/logger"
)

// RegisterProof 登记新的证明承诺。
//
// 依次校验 proof_id、各哈希字段、proof_type 与 metadata，随后检查重复。
// 成功时证明处于 Pending，并写入意图索引、来源统计与全局计数。
func (r *Registry) RegisterProof(ctx context.Context, call Call, req RegisterRequest) (proof ProofCommitment, err error) {
	started := time.Now()
	defer func() { r.finish(ctx, "register", req.ProofID, started, err) }()

	if err := validateRequest(req); err != nil {
		return ProofCommitment{}, err
	}

	r.mu.Lock()
	proof, err = r.registerLocked(ctx, call, req)
	r.mu.Unlock()
	if err != nil {
		return ProofCommitment{}, err
	}

	logger.Audit().Info("proof registered",
		slog.String("proof_id", proof.ProofID),
		slog.String("source", logger.ShortHash(proof.SourceHash)),
		slog.String("intel", logger.ShortHash(proof.IntelHash)),
		slog.String("proof_type", proof.ProofType.String()),
		slog.String("caller", call.Caller),
		slog.Uint64("height", proof.BlockHeight),
	)
	evt := events.New(events.TypeProofRegistered, proof.ProofID)
	evt.SourceHash = proof.SourceHash
	evt.IntelHash = proof.IntelHash
	evt.Caller = call.Caller
	evt.Status = proof.Status.String()
	evt.Height = proof.BlockHeight
	evt.Timestamp = proof.TimestampNs
	r.publish(ctx, evt)
	return proof, nil
}

func (r *Registry) registerLocked(ctx context.Context, call Call, req RegisterRequest) (ProofCommitment, error) {
	t := newTxn(r.store)

	var existing ProofCommitment
	found, err := t.load(ctx, proofKey(req.ProofID), &existing)
	if err != nil {
		return ProofCommitment{}, err
	}
	if found {
		return ProofCommitment{}, xerrors.Newf(xerrors.CodeDuplicateProof, "proof %s already registered", req.ProofID)
	}

	call, err = r.stamp(ctx, call)
	if err != nil {
		return ProofCommitment{}, err
	}

	var totals Totals
	if _, err := t.load(ctx, totalsKey, &totals); err != nil {
		return ProofCommitment{}, err
	}
	totals.TotalProofs++

	proof := ProofCommitment{
		ProofID:          req.ProofID,
		Commitment:       req.Commitment,
		ProofType:        req.ProofType,
		SourceHash:       req.SourceHash,
		IntelHash:        req.IntelHash,
		PublicInputsHash: req.PublicInputsHash,
		BlockHeight:      call.Tick.Height,
		TimestampNs:      call.Tick.Timestamp,
		Metadata:         req.Metadata,
		Status:           StatusPending,
		Sequence:         totals.TotalProofs,
	}

	var intelProofs []string
	if _, err := t.load(ctx, intelKey(req.IntelHash), &intelProofs); err != nil {
		return ProofCommitment{}, err
	}
	intelProofs = append(intelProofs, req.ProofID)

	var stats SourceStats
	if _, err := t.load(ctx, sourceKey(req.SourceHash), &stats); err != nil {
		return ProofCommitment{}, err
	}
	if stats.TotalProofs == 0 {
		stats.FirstProofHeight = call.Tick.Height
	}
	stats.TotalProofs++
	stats.LastProofHeight = call.Tick.Height

	if err := t.put(proofKey(req.ProofID), proof); err != nil {
		return ProofCommitment{}, err
	}
	if err := t.put(attestKey(req.ProofID), []Attestation{}); err != nil {
		return ProofCommitment{}, err
	}
	if err := t.put(intelKey(req.IntelHash), intelProofs); err != nil {
		return ProofCommitment{}, err
	}
	if err := t.put(sourceKey(req.SourceHash), stats); err != nil {
		return ProofCommitment{}, err
	}
	if err := t.put(totalsKey, totals); err != nil {
		return ProofCommitment{}, err
	}
	if err := r.commit(ctx, t, call.Tick); err != nil {
		return ProofCommitment{}, err
	}
	return proof, nil
}
