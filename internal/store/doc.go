// Package store provides SQLite-backed persistence for tomepile's
// authentication entities: users, passkey credentials, recovery codes,
// invitation tokens, and setup tokens.
//
// Invariants enforced at this boundary:
//
//   - Usernames are unique; duplicate creation fails with ErrUsernameTaken.
//   - A registered user always keeps at least one credential; deletion of
//     the last one fails with ErrLastCredential.
//   - Recovery codes exist only as bcrypt hashes and flip to used at most
//     once.
//   - Invitation and setup tokens are consumed with a single atomic UPDATE,
//     so a token can never authorize two registrations.
//   - Registration commits (user + credential + recovery codes + token
//     consumption) are single transactions with full rollback on failure.
package store
