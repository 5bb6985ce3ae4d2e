package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	xerrors "intel-registry/internal/errors"
)

// Type 标识事件类别。
type Type string

const (
	TypeProofRegistered     Type = "proof.registered"
	TypeAttestationRecorded Type = "attestation.recorded"
	TypeProofRefuted        Type = "proof.refuted"
)

// Event 描述一次已提交的登记簿变更。
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	ProofID    string    `json:"proof_id"`
	SourceHash string    `json:"source_hash,omitempty"`
	IntelHash  string    `json:"intel_hash,omitempty"`
	Caller     string    `json:"caller,omitempty"`
	Confidence uint8     `json:"confidence,omitempty"`
	Replaced   bool      `json:"replaced,omitempty"`
	Status     string    `json:"status,omitempty"`
	AvgConf    uint8     `json:"avg_confidence,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Height     uint64    `json:"block_height"`
	Timestamp  int64     `json:"timestamp_ns"`
	EmittedAt  time.Time `json:"emitted_at"`
}

// New 创建带有唯一 ID 的事件。
func New(typ Type, proofID string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		ProofID:   proofID,
		EmittedAt: time.Now().UTC(),
	}
}

// Encode 将事件编码为 JSON。
func Encode(evt Event) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeEventFailure, err, "序列化事件失败")
	}
	return data, nil
}

// Decode 解析 JSON 事件。
func Decode(data []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return Event{}, xerrors.Wrap(xerrors.CodeEventFailure, err, "解析事件失败")
	}
	if evt.ID == "" || evt.Type == "" {
		return Event{}, xerrors.New(xerrors.CodeEventFailure, "事件缺少 id 或 type")
	}
	return evt, nil
}
