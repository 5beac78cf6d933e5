// Package auth provides session token issuing, validation, and the HTTP
// bearer middleware for tomepile.
//
// Tokens are self-contained HS256 JWTs carrying the user ID and username.
// Validation is stateless; there is no revocation list. The middleware still
// loads the user row so tokens for deleted accounts stop working immediately.
package auth
