// Package registry is the proof and attestation registry engine.
//
// A Registry records proof commitments about intelligence claims, collects
// attestations from independent verifiers, derives each proof's verification
// status and keeps per-source counters from which the reputation score is
// computed. Everything is persisted through a storage.Store under four
// keyspaces (proof/, attest/, intel/, source/) plus registry metadata (meta/).
//
// Mutations are serialized by the registry and committed as one atomic batch;
// a call that fails for any reason leaves the store untouched.
package registry
