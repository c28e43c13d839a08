// Package enroll admits new agents into the fleet.
//
// # Keys
//
// An enrollment key is a named pre-shared credential. The secret is
// bcrypt-hashed at rest and the cleartext is surfaced exactly once, when
// the key is created. Keys are created from the droverd bootstrap flow or
// the admin CLI, and can be revoked at any time. Revoking a key stops new
// enrollments under it; agents already enrolled keep their credentials.
//
// # Exchange
//
// An agent presents a key name, its secret, and a set of host facts
// (hostname, OS, architecture, agent version). On success the service
// registers an approved agent row under a fresh uuid and mints the JWT
// the agent authenticates with from then on.
//
// Unknown key names and wrong secrets both map to ErrUnknownKey so a
// probing client cannot enumerate valid names; revoked keys map to
// ErrKeyRevoked.
package enroll
