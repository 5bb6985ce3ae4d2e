package registry

import (
	"encoding/json"
	"fmt"
)

// Status 是证明的验证状态。
type Status uint8

const (
	StatusPending Status = iota
	StatusVerified
	StatusContested
	StatusRefuted
)

// VerifiedThreshold 是进入 Verified 所需的最低平均置信度。
const VerifiedThreshold = 70

var statusNames = [...]string{
	StatusPending:   "Pending",
	StatusVerified:  "Verified",
	StatusContested: "Contested",
	StatusRefuted:   "Refuted",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

// MarshalJSON 以名称形式编码。
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON 解析名称。
func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for i, n := range statusNames {
		if n == name {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown status %q", name)
}

// ResolveStatus 根据聚合结果推导状态。Refuted 为终态，一旦进入不再改变。
func ResolveStatus(current Status, attestationCount uint32, avgConfidence uint8) Status {
	switch {
	case current == StatusRefuted:
		return StatusRefuted
	case attestationCount == 0:
		return StatusPending
	case avgConfidence >= VerifiedThreshold:
		return StatusVerified
	default:
		return StatusContested
	}
}

// CanRefute 判断调用方能否驳回证明：所有者，或至少 3 条证言且平均置信度低于 30。
func CanRefute(caller, owner string, attestationCount uint32, avgConfidence uint8) bool {
	if caller != "" && caller == owner {
		return true
	}
	return attestationCount >= refuteQuorum && avgConfidence < refuteCeiling
}

const (
	refuteQuorum  = 3
	refuteCeiling = 30
)
