// Package chainclock supplies the (height, timestamp) pair stamped on every
// registry mutation. LocalClock derives both from a process-local counter and
// the wall clock; EVMClock follows the head of an EVM chain through
// go-ethereum. Both guarantee the values never decrease.
package chainclock
