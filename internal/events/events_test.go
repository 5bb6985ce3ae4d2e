package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "intel-registry/internal/errors"
)

func TestNewAssignsUUID(t *testing.T) {
	evt := New(TypeProofRegistered, "p-1")
	_, err := uuid.Parse(evt.ID)
	require.NoError(t, err)
	assert.Equal(t, "p-1", evt.ProofID)
	assert.False(t, evt.EmittedAt.IsZero())
}

func TestDecodeRejectsIncompleteEvent(t *testing.T) {
	_, err := Decode([]byte(`{"proof_id":"p-1"}`))
	assert.Equal(t, xerrors.CodeEventFailure, xerrors.CodeOf(err))

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)
}

func TestEncodeDecode(t *testing.T) {
	evt := New(TypeAttestationRecorded, "p-2")
	evt.Confidence = 80
	evt.Caller = "attestor.near"
	data, err := Encode(evt)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, evt.ID, decoded.ID)
	assert.Equal(t, uint8(80), decoded.Confidence)
	assert.Equal(t, "attestor.near", decoded.Caller)
}

func TestMemoryQueueDelivers(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, q.Publish(ctx, New(TypeProofRegistered, "a")))
	require.NoError(t, q.Publish(ctx, New(TypeProofRefuted, "b")))

	var (
		mu  sync.Mutex
		got []string
	)
	done := make(chan struct{})
	go func() {
		_ = q.Consume(ctx, 2, func(_ context.Context, evt Event) error {
			mu.Lock()
			got = append(got, evt.ProofID)
			if len(got) == 2 {
				close(done)
			}
			mu.Unlock()
			return nil
		})
	}()

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("events not consumed")
	}
	mu.Lock()
	assert.ElementsMatch(t, []string{"a", "b"}, got)
	mu.Unlock()
}

func TestMemoryQueueFull(t *testing.T) {
	q := NewMemoryQueue(1)
	require.NoError(t, q.Publish(context.Background(), New(TypeProofRegistered, "a")))
	err := q.Publish(context.Background(), New(TypeProofRegistered, "b"))
	assert.Equal(t, xerrors.CodeEventFailure, xerrors.CodeOf(err))
	assert.Equal(t, 1, q.Len())
}

func TestMemoryQueueClosed(t *testing.T) {
	q := NewMemoryQueue(1)
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	assert.Error(t, q.Publish(context.Background(), New(TypeProofRegistered, "a")))

	err := q.Consume(context.Background(), 1, func(context.Context, Event) error { return nil })
	assert.NoError(t, err)
}

func TestOpenDrivers(t *testing.T) {
	q, err := Open(context.Background(), Config{})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, q)

	q, err = Open(context.Background(), Config{Driver: "memory", Buffer: 2})
	require.NoError(t, err)
	assert.IsType(t, &MemoryQueue{}, q)

	_, err = Open(context.Background(), Config{Driver: "kafka"})
	assert.Error(t, err)

	_, err = Open(context.Background(), Config{Driver: "redis"})
	assert.Error(t, err)

	_, err = Open(context.Background(), Config{Driver: "rabbitmq"})
	assert.Error(t, err)
}

func TestNopConsumeReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Nop{}.Consume(ctx, 1, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
