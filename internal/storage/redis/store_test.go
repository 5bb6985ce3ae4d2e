package redis

import (
	"context"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "intel-registry/internal/errors"
	"intel-registry/internal/storage"
)

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `intel/\*a\?b\[c\]`, escapeGlob("intel/*a?b[c]"))
	assert.Equal(t, "proof/", escapeGlob("proof/"))
}

func TestNamespaceDefaults(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	store := NewWithClient(client, "", 0)
	assert.Equal(t, "intelreg:proof/p-1", store.namespaced("proof/p-1"))
	assert.EqualValues(t, 256, store.scanCount)

	custom := NewWithClient(client, "reg:", 10)
	assert.Equal(t, "reg:meta/totals", custom.namespaced("meta/totals"))
}

func TestOpenRequiresAddress(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeInitializationFailure, xerrors.CodeOf(err))
}

func TestApplyEmptyBatchIsNoop(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	store := NewWithClient(client, "test", 0)
	require.NoError(t, store.Apply(context.Background(), storage.NewBatch()))
}
