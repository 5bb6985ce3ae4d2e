// Package redis implements the registry store on Redis. Batches are sent as a
// single MULTI/EXEC transaction and prefix scans use SCAN with a MATCH pattern.
package redis
