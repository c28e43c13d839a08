// Package auth provides authentication and authorization for drover.
//
// # Tokens
//
// All callers authenticate with HS256-signed JWTs minted by the control
// plane itself:
//
//   - Agent tokens are minted at enrollment. The "sub" claim is the agent
//     id and the "role" claim is "agent". An agent token only authorizes
//     endpoints scoped to that agent.
//
//   - Admin tokens are minted by droverd bootstrap (and by operators with
//     an existing admin token). The "role" claim is "admin".
//
// # Request Flow
//
// Middleware extracts the token from the Authorization header, or from
// the token query parameter on socket dials, verifies it, checks agent
// identities against the agent table (revoked agents are cut off even
// with a valid token), and attaches the Identity to the request context.
// Handlers read it back with FromContext and use CanActForAgent for
// agent-scoped authorization.
//
// # Errors
//
//   - ErrInvalidToken: malformed, tampered, or wrongly signed
//   - ErrExpiredToken: signature fine, exp in the past
//   - ErrMissingClaim: no usable "sub"
package auth
