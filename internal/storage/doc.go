// Package storage defines the durable key-addressed store used by the
// registry, plus an in-memory implementation. Durable backends live in the
// badger, mysql and redis subpackages.
package storage
