// Package api exposes the registry over a JSON REST interface under /api/v1.
// Mutating routes require the caller identity header set by the fronting
// gateway; failures are returned as {"code","message"} with an HTTP status
// derived from the error code.
package api
