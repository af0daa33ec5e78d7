// Package api hosts the HTTP handlers that front the Minbar REST API.
//
// The handlers assembled by Handler coordinate request validation,
// identity awareness, and response shaping while delegating persistence
// to storage.Repository implementations injected at construction time.
// Credential verification is pluggable through the Authenticator
// interface so deployments can run with a shared admin secret, per-user
// credentials, or session tokens without touching handler code.
//
// Handler implementations assume upstream middleware from internal/server
// has already enforced authentication on protected routes, rate limiting,
// metrics, and request logging. New routes should preserve that contract
// by leaning on the middleware guarantees instead of re-validating.
package api
