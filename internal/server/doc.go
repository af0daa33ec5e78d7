// Package server wires the API handlers into an http.Server with the
// middleware stack applied in a fixed order: request IDs, logging,
// metrics, rate limiting, CORS, security headers, and authentication.
// Handlers below the stack can rely on protected routes carrying an
// authenticated identity in the request context.
package server
