package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http/httptest"
	"time"

	"intel-registry/internal/api"
	"intel-registry/internal/chainclock"
	"intel-registry/internal/registry"
	"intel-registry/internal/storage"
	"intel-registry/sdk/go/intelreg"
)

func hash(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	reg, err := registry.New(ctx, storage.NewMemoryStore(), registry.Options{
		Owner: "demo-owner",
		Clock: chainclock.NewLocalClock(0),
	})
	if err != nil {
		panic(err)
	}
	srv := httptest.NewServer(api.NewServer(reg, api.Options{}).Handler())
	defer srv.Close()

	client, err := intelreg.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	source := hash("source:demo")
	client.SetCaller("publisher")
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("demo-%d", i)
		proof, err := client.RegisterProof(ctx, intelreg.RegisterRequest{
			ProofID:          id,
			Commitment:       hash("commitment:" + id),
			ProofType:        "MultiSourceCorroboration",
			SourceHash:       source,
			IntelHash:        hash("intel:" + id),
			PublicInputsHash: hash("inputs:" + id),
		})
		if err != nil {
			panic(err)
		}
		fmt.Printf("registered %s at height %d\n", proof.ProofID, proof.BlockHeight)
	}

	for i, attestor := range []string{"alice", "bob", "carol"} {
		client.SetCaller(attestor)
		result, err := client.Attest(ctx, fmt.Sprintf("demo-%d", i), 80, "")
		if err != nil {
			panic(err)
		}
		fmt.Printf("%s attested %s -> %s (avg %d)\n", attestor, result.Proof.ProofID, result.Proof.Status, result.Proof.AvgConfidence)
	}

	stats, err := client.GetSourceStats(ctx, source)
	if err != nil {
		panic(err)
	}
	score, err := client.GetSourceReputation(ctx, source)
	if err != nil {
		panic(err)
	}
	fmt.Printf("source stats %+v reputation=%d\n", stats, score)
}
