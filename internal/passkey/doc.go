// Package passkey orchestrates the WebAuthn ceremonies: new-account
// registration (invitation gated after bootstrap), passkey and
// recovery-code login, authenticated add-device enrollment, and the
// token-gated cross-device setup flow.
package passkey
