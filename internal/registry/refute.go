package registry

import (
	"context"
	"log/slog"
	"time"

	xerrors "intel-registry/internal/errors"
	"intel-registry/internal/events"
	"intel-registry/pkg/logger"
)

// RefuteProof 将证明标记为 Refuted。
//
// 只有所有者，或在证明已有至少 3 条证言且平均置信度低于 30 时的任意调用方可以驳回。
// 已被驳回的证明再次驳回不产生任何变化。
func (r *Registry) RefuteProof(ctx context.Context, call Call, req RefuteRequest) (proof ProofCommitment, err error) {
	started := time.Now()
	defer func() { r.finish(ctx, "refute", req.ProofID, started, err) }()

	if err := validateRequest(req); err != nil {
		return ProofCommitment{}, err
	}

	var (
		previous Status
		changed  bool
	)
	r.mu.Lock()
	proof, previous, call, changed, err = r.refuteLocked(ctx, call, req)
	r.mu.Unlock()
	if err != nil {
		return ProofCommitment{}, err
	}
	if !changed {
		return proof, nil
	}

	r.stats.ObserveTransition(previous.String(), proof.Status.String())
	logger.Audit().Info("proof refuted",
		slog.String("proof_id", proof.ProofID),
		slog.String("caller", call.Caller),
		slog.String("previous_status", previous.String()),
		slog.String("reason", req.Reason),
		slog.Uint64("height", call.Tick.Height),
	)
	evt := events.New(events.TypeProofRefuted, proof.ProofID)
	evt.SourceHash = proof.SourceHash
	evt.IntelHash = proof.IntelHash
	evt.Caller = call.Caller
	evt.Status = proof.Status.String()
	evt.Reason = req.Reason
	evt.Height = call.Tick.Height
	evt.Timestamp = call.Tick.Timestamp
	r.publish(ctx, evt)
	return proof, nil
}

func (r *Registry) refuteLocked(ctx context.Context, call Call, req RefuteRequest) (ProofCommitment, Status, Call, bool, error) {
	t := newTxn(r.store)

	var proof ProofCommitment
	found, err := t.load(ctx, proofKey(req.ProofID), &proof)
	if err != nil {
		return ProofCommitment{}, 0, call, false, err
	}
	if !found {
		return ProofCommitment{}, 0, call, false, xerrors.Newf(xerrors.CodeNotFound, "proof %s not found", req.ProofID)
	}
	if !CanRefute(call.Caller, r.owner, proof.AttestationCount, proof.AvgConfidence) {
		return ProofCommitment{}, 0, call, false, xerrors.Newf(xerrors.CodeNotAuthorized, "caller %q may not refute proof %s", call.Caller, req.ProofID)
	}
	previous := proof.Status
	if previous == StatusRefuted {
		return proof, previous, call, false, nil
	}

	call, err = r.stamp(ctx, call)
	if err != nil {
		return ProofCommitment{}, 0, call, false, err
	}

	var stats SourceStats
	if _, err := t.load(ctx, sourceKey(proof.SourceHash), &stats); err != nil {
		return ProofCommitment{}, 0, call, false, err
	}
	proof.Status = StatusRefuted
	stats.RefutedCount++
	adjustVerified(&stats, previous, proof.Status)

	if err := t.put(proofKey(proof.ProofID), proof); err != nil {
		return ProofCommitment{}, 0, call, false, err
	}
	if err := t.put(sourceKey(proof.SourceHash), stats); err != nil {
		return ProofCommitment{}, 0, call, false, err
	}
	if err := r.commit(ctx, t, call.Tick); err != nil {
		return ProofCommitment{}, 0, call, false, err
	}
	return proof, previous, call, true, nil
}
