// Package reputation maps per-source registry counters to a bounded trust
// score. The computation is exact: every term is brought to a common
// denominator and evaluated with 256-bit integers, so the result never depends
// on floating point rounding.
package reputation

import "github.com/holiman/uint256"

const (
	// MaxScore 为分值上限。
	MaxScore = 100

	verifiedWeight   = 50
	confidenceCap    = 30
	refutedWeight    = 30
	activityBonusCap = 10
)

// Stats 是计算所需的来源计数器。
type Stats struct {
	TotalProofs       uint64
	TotalAttestations uint64
	ConfidenceSum     uint64
	VerifiedCount     uint64
	RefutedCount      uint64
}

// Score 返回 [0,100] 区间内的信誉分。
//
//	score = verified/total*50 + min(conf_sum/attestations, 30)
//	      - refuted/total*30 + min(total, 10)
//
// 置信度项在没有证明的情况下为 0，结果向下取整后截断到区间内。
func Score(s Stats) uint8 {
	if s.TotalProofs == 0 {
		return 0
	}

	tp := uint256.NewInt(s.TotalProofs)
	ta := uint256.NewInt(s.TotalAttestations)
	if s.TotalAttestations == 0 {
		// 置信度项为 0，公分母退化为 total_proofs。
		ta.SetOne()
	}
	denominator := new(uint256.Int).Mul(tp, ta)

	// verified*50*ta
	positive := mul(s.VerifiedCount, verifiedWeight, ta)

	// min(conf_sum, 30*ta)*tp
	if s.TotalAttestations > 0 {
		capped := uint256.NewInt(s.ConfidenceSum)
		limit := mul(confidenceCap, 1, ta)
		if capped.Gt(limit) {
			capped = limit
		}
		positive.Add(positive, capped.Mul(capped, tp))
	}

	// min(total, 10)*tp*ta
	activity := s.TotalProofs
	if activity > activityBonusCap {
		activity = activityBonusCap
	}
	positive.Add(positive, new(uint256.Int).Mul(mul(activity, 1, tp), ta))

	negative := mul(s.RefutedCount, refutedWeight, ta)
	if !positive.Gt(negative) {
		return 0
	}

	score := new(uint256.Int).Sub(positive, negative)
	score.Div(score, denominator)
	if score.GtUint64(MaxScore) {
		return MaxScore
	}
	return uint8(score.Uint64())
}

func mul(a, b uint64, c *uint256.Int) *uint256.Int {
	out := uint256.NewInt(a)
	out.Mul(out, uint256.NewInt(b))
	return out.Mul(out, c)
}
