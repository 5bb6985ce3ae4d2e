package registry

import (
	"context"
	"log/slog"
	"time"

	xerrors "intel-registry/internal/errors"
	"intel-registry/internal/events"
	"intel-registry/pkg/logger"
)

// Attest 记录调用方对证明的证言。
//
// 同一验证方再次提交时原位替换其证言，证言数不变；否则追加。之后重新计算平均
// 置信度并推导状态。来源的 confidence_sum 始终等于有效置信度之和，
// total_attestations 只统计首次证言；verified_count 随进入或离开 Verified 增减。
func (r *Registry) Attest(ctx context.Context, call Call, req AttestRequest) (result AttestResult, err error) {
	started := time.Now()
	defer func() { r.finish(ctx, "attest", req.ProofID, started, err) }()

	if err := validateRequest(req); err != nil {
		return AttestResult{}, err
	}
	if call.Caller == "" {
		return AttestResult{}, xerrors.New(xerrors.CodeNotAuthorized, "attestor identity is required")
	}

	var previous Status
	r.mu.Lock()
	result, previous, call, err = r.attestLocked(ctx, call, req)
	r.mu.Unlock()
	if err != nil {
		return AttestResult{}, err
	}

	proof := result.Proof
	r.stats.ObserveConfidence(uint8(req.Confidence))
	r.stats.ObserveTransition(previous.String(), proof.Status.String())
	logger.Audit().Info("attestation recorded",
		slog.String("proof_id", proof.ProofID),
		slog.String("attestor", call.Caller),
		slog.Int("confidence", req.Confidence),
		slog.Bool("replaced", result.Replaced),
		slog.String("status", proof.Status.String()),
		slog.Int("avg_confidence", int(proof.AvgConfidence)),
		slog.Uint64("height", call.Tick.Height),
	)
	evt := events.New(events.TypeAttestationRecorded, proof.ProofID)
	evt.SourceHash = proof.SourceHash
	evt.IntelHash = proof.IntelHash
	evt.Caller = call.Caller
	evt.Confidence = uint8(req.Confidence)
	evt.Replaced = result.Replaced
	evt.Status = proof.Status.String()
	evt.AvgConf = proof.AvgConfidence
	evt.Height = call.Tick.Height
	evt.Timestamp = call.Tick.Timestamp
	r.publish(ctx, evt)
	return result, nil
}

// attestLocked 返回补全时钟读数后的调用，供审计与事件使用。
func (r *Registry) attestLocked(ctx context.Context, call Call, req AttestRequest) (AttestResult, Status, Call, error) {
	t := newTxn(r.store)

	var proof ProofCommitment
	found, err := t.load(ctx, proofKey(req.ProofID), &proof)
	if err != nil {
		return AttestResult{}, 0, call, err
	}
	if !found {
		return AttestResult{}, 0, call, xerrors.Newf(xerrors.CodeNotFound, "proof %s not found", req.ProofID)
	}

	call, err = r.stamp(ctx, call)
	if err != nil {
		return AttestResult{}, 0, call, err
	}

	var ledger []Attestation
	if _, err := t.load(ctx, attestKey(req.ProofID), &ledger); err != nil {
		return AttestResult{}, 0, call, err
	}
	var stats SourceStats
	if _, err := t.load(ctx, sourceKey(proof.SourceHash), &stats); err != nil {
		return AttestResult{}, 0, call, err
	}
	var totals Totals
	if _, err := t.load(ctx, totalsKey, &totals); err != nil {
		return AttestResult{}, 0, call, err
	}

	entry := Attestation{
		Attestor:    call.Caller,
		Confidence:  uint8(req.Confidence),
		BlockHeight: call.Tick.Height,
		Note:        req.Note,
	}
	replaced := false
	for i := range ledger {
		if ledger[i].Attestor == call.Caller {
			stats.ConfidenceSum = stats.ConfidenceSum - uint64(ledger[i].Confidence) + uint64(entry.Confidence)
			ledger[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		ledger = append(ledger, entry)
		stats.TotalAttestations++
		stats.ConfidenceSum += uint64(entry.Confidence)
		totals.TotalAttestations++
	}

	var sum uint64
	for _, a := range ledger {
		sum += uint64(a.Confidence)
	}
	previous := proof.Status
	proof.AttestationCount = uint32(len(ledger))
	proof.AvgConfidence = uint8(sum / uint64(len(ledger)))
	proof.Status = ResolveStatus(previous, proof.AttestationCount, proof.AvgConfidence)
	adjustVerified(&stats, previous, proof.Status)

	if err := t.put(proofKey(proof.ProofID), proof); err != nil {
		return AttestResult{}, 0, call, err
	}
	if err := t.put(attestKey(proof.ProofID), ledger); err != nil {
		return AttestResult{}, 0, call, err
	}
	if err := t.put(sourceKey(proof.SourceHash), stats); err != nil {
		return AttestResult{}, 0, call, err
	}
	if err := t.put(totalsKey, totals); err != nil {
		return AttestResult{}, 0, call, err
	}
	if err := r.commit(ctx, t, call.Tick); err != nil {
		return AttestResult{}, 0, call, err
	}
	return AttestResult{Proof: proof, Replaced: replaced}, previous, call, nil
}

// adjustVerified 维护 verified_count 为当前处于 Verified 的证明数量。
func adjustVerified(stats *SourceStats, from, to Status) {
	switch {
	case from != StatusVerified && to == StatusVerified:
		stats.VerifiedCount++
	case from == StatusVerified && to != StatusVerified && stats.VerifiedCount > 0:
		stats.VerifiedCount--
	}
}
