package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUsesDefaultMessage(t *testing.T) {
	err := New(CodeDuplicateProof, "")
	assert.Equal(t, "proof already registered", err.Message())
	assert.Equal(t, "[DUPLICATE_PROOF] proof already registered", err.Error())
}

func TestIsComparesCodes(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", New(CodeNotFound, "proof p-1 missing"))
	assert.True(t, stdErrors.Is(wrapped, New(CodeNotFound, "")))
	assert.False(t, stdErrors.Is(wrapped, New(CodeNotAuthorized, "")))
	assert.Equal(t, CodeNotFound, CodeOf(wrapped))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("disk full")
	err := Wrap(CodeStorageFailure, cause, "commit batch")
	require.ErrorIs(t, err, cause)
	assert.True(t, ShouldAlert(err))
	assert.True(t, RetryableError(err))
	assert.Equal(t, SeverityCritical, SeverityOf(err))
}

func TestWithAlertOverride(t *testing.T) {
	err := New(CodeStorageFailure, "", WithAlert(false))
	assert.False(t, err.ShouldAlert())
}

func TestHTTPStatusOf(t *testing.T) {
	cases := map[Code]int{
		CodeInvalidFormat:     http.StatusBadRequest,
		CodeInvalidConfidence: http.StatusBadRequest,
		CodeNotFound:          http.StatusNotFound,
		CodeNotAuthorized:     http.StatusForbidden,
		CodeDuplicateProof:    http.StatusConflict,
		CodeStorageFailure:    http.StatusServiceUnavailable,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatusOf(New(code, "")), string(code))
	}
	assert.Equal(t, http.StatusInternalServerError, HTTPStatusOf(stdErrors.New("plain")))
}

func TestRegisterCustomCode(t *testing.T) {
	code := Code("TEST_CUSTOM")
	Register(code, Attributes{Message: "custom", HTTPStatus: http.StatusTeapot})
	err := New(code, "")
	assert.Equal(t, "custom", err.Message())
	assert.Equal(t, http.StatusTeapot, HTTPStatusOf(err))
}

func TestMetadataIsCopied(t *testing.T) {
	err := New(CodeNotFound, "", WithMetadata("proof_id", "p-1"))
	meta := err.Metadata()
	meta["proof_id"] = "changed"
	assert.Equal(t, "p-1", err.Metadata()["proof_id"])
}
