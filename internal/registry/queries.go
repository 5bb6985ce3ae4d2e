package registry

import (
	"context"
	"encoding/json"
	"sort"

	xerrors "intel-registry/internal/errors"
	"intel-registry/internal/reputation"
)

// GetProof 返回证明，不存在时返回 NOT_FOUND。
func (r *Registry) GetProof(ctx context.Context, proofID string) (ProofCommitment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getProof(ctx, proofID)
}

func (r *Registry) getProof(ctx context.Context, proofID string) (ProofCommitment, error) {
	var proof ProofCommitment
	found, err := reader{store: r.store}.load(ctx, proofKey(proofID), &proof)
	if err != nil {
		return ProofCommitment{}, err
	}
	if !found {
		return ProofCommitment{}, xerrors.Newf(xerrors.CodeNotFound, "proof %s not found", proofID)
	}
	return proof, nil
}

// GetProofWithAttestations 返回证明与其证言，证言按首次提交顺序排列。
func (r *Registry) GetProofWithAttestations(ctx context.Context, proofID string) (ProofWithAttestations, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	proof, err := r.getProof(ctx, proofID)
	if err != nil {
		return ProofWithAttestations{}, err
	}
	var ledger []Attestation
	if _, err := (reader{store: r.store}).load(ctx, attestKey(proofID), &ledger); err != nil {
		return ProofWithAttestations{}, err
	}
	if ledger == nil {
		ledger = []Attestation{}
	}
	return ProofWithAttestations{Proof: proof, Attestations: ledger}, nil
}

// GetIntelProofs 返回关联到情报哈希的证明，按登记顺序排列，跳过索引中已不存在的条目。
func (r *Registry) GetIntelProofs(ctx context.Context, intelHash string) ([]ProofCommitment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rd := reader{store: r.store}
	var ids []string
	if _, err := rd.load(ctx, intelKey(intelHash), &ids); err != nil {
		return nil, err
	}
	out := make([]ProofCommitment, 0, len(ids))
	for _, id := range ids {
		var proof ProofCommitment
		found, err := rd.load(ctx, proofKey(id), &proof)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, proof)
		}
	}
	return out, nil
}

// GetSourceStats 返回来源统计，未出现过的来源返回零值。
func (r *Registry) GetSourceStats(ctx context.Context, sourceHash string) (SourceStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sourceStats(ctx, sourceHash)
}

func (r *Registry) sourceStats(ctx context.Context, sourceHash string) (SourceStats, error) {
	var stats SourceStats
	if _, err := (reader{store: r.store}).load(ctx, sourceKey(sourceHash), &stats); err != nil {
		return SourceStats{}, err
	}
	return stats, nil
}

// GetSourceReputation 返回来源的信誉分。
func (r *Registry) GetSourceReputation(ctx context.Context, sourceHash string) (uint8, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats, err := r.sourceStats(ctx, sourceHash)
	if err != nil {
		return 0, err
	}
	return reputation.Score(stats.reputationStats()), nil
}

func (s SourceStats) reputationStats() reputation.Stats {
	return reputation.Stats{
		TotalProofs:       s.TotalProofs,
		TotalAttestations: s.TotalAttestations,
		ConfidenceSum:     s.ConfidenceSum,
		VerifiedCount:     s.VerifiedCount,
		RefutedCount:      s.RefutedCount,
	}
}

// VerifyCommitment 判断给定承诺是否与已登记的承诺完全一致。未知证明返回 false。
func (r *Registry) VerifyCommitment(ctx context.Context, proofID, commitment string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var proof ProofCommitment
	found, err := reader{store: r.store}.load(ctx, proofKey(proofID), &proof)
	if err != nil || !found {
		return false, err
	}
	return proof.Commitment == commitment, nil
}

// GetRecentProofs 返回最近登记的至多 limit 个证明：按高度降序，同一高度按登记顺序。
func (r *Registry) GetRecentProofs(ctx context.Context, limit int) ([]ProofCommitment, error) {
	if limit <= 0 {
		return []ProofCommitment{}, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var proofs []ProofCommitment
	err := r.store.Scan(ctx, proofPrefix, func(key string, value []byte) error {
		var proof ProofCommitment
		if err := json.Unmarshal(value, &proof); err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析证明失败", xerrors.WithMetadata("key", key))
		}
		proofs = append(proofs, proof)
		return nil
	})
	if err != nil {
		return nil, storageError(err, "遍历证明失败", proofPrefix)
	}
	sort.Slice(proofs, func(i, j int) bool {
		if proofs[i].BlockHeight != proofs[j].BlockHeight {
			return proofs[i].BlockHeight > proofs[j].BlockHeight
		}
		return proofs[i].Sequence < proofs[j].Sequence
	})
	if len(proofs) > limit {
		proofs = proofs[:limit]
	}
	if proofs == nil {
		proofs = []ProofCommitment{}
	}
	return proofs, nil
}

// GetStats 返回全局计数。
func (r *Registry) GetStats(ctx context.Context) (Totals, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var totals Totals
	if _, err := (reader{store: r.store}).load(ctx, totalsKey, &totals); err != nil {
		return Totals{}, err
	}
	return totals, nil
}
