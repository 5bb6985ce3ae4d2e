package registry

import (
	"strings"

	xerrors "intel-registry/internal/errors"
)

// ProofType 是证明类别的封闭枚举。
type ProofType uint8

const (
	ProofTypeLocationProximity ProofType = iota + 1
	ProofTypeTimestampRange
	ProofTypeDocumentContains
	ProofTypeImageMetadata
	ProofTypeMultiSourceCorroboration
	ProofTypeVerifiableCredential
	ProofTypeSatelliteImagery
	ProofTypeNetworkMembership
	ProofTypeFinancialThreshold
	ProofTypeGenericCommitment
)

var proofTypeNames = [...]string{
	ProofTypeLocationProximity:        "LocationProximity",
	ProofTypeTimestampRange:           "TimestampRange",
	ProofTypeDocumentContains:         "DocumentContains",
	ProofTypeImageMetadata:            "ImageMetadata",
	ProofTypeMultiSourceCorroboration: "MultiSourceCorroboration",
	ProofTypeVerifiableCredential:     "VerifiableCredential",
	ProofTypeSatelliteImagery:         "SatelliteImagery",
	ProofTypeNetworkMembership:        "NetworkMembership",
	ProofTypeFinancialThreshold:       "FinancialThreshold",
	ProofTypeGenericCommitment:        "GenericCommitment",
}

// ProofTypes 返回全部证明类别。
func ProofTypes() []ProofType {
	out := make([]ProofType, 0, len(proofTypeNames)-1)
	for t := ProofTypeLocationProximity; t <= ProofTypeGenericCommitment; t++ {
		out = append(out, t)
	}
	return out
}

// Valid 判断是否属于封闭集合。
func (t ProofType) Valid() bool {
	return t >= ProofTypeLocationProximity && t <= ProofTypeGenericCommitment
}

func (t ProofType) String() string {
	if !t.Valid() {
		return "Unknown"
	}
	return proofTypeNames[t]
}

// ParseProofType 按名称（大小写不敏感）解析证明类别。
func ParseProofType(name string) (ProofType, error) {
	for _, t := range ProofTypes() {
		if strings.EqualFold(proofTypeNames[t], strings.TrimSpace(name)) {
			return t, nil
		}
	}
	return 0, xerrors.New(xerrors.CodeInvalidFormat, "unknown proof_type "+name, xerrors.WithMetadata("field", "proof_type"))
}

// MarshalText 以名称形式编码。
func (t ProofType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, xerrors.New(xerrors.CodeInvalidFormat, "invalid proof_type")
	}
	return []byte(t.String()), nil
}

// UnmarshalText 解析名称。
func (t *ProofType) UnmarshalText(text []byte) error {
	parsed, err := ParseProofType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
