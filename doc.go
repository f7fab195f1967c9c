// Package authkit is an embeddable account-authentication core: the login
// decision engine, lockout policy, single-use recovery tokens,
// external-identity sign-in and a small profile surface.
//
// The engine is built once via the Builder and shared:
//
//	engine, err := authkit.New().
//		WithRedis(client).
//		WithDirectory(dir).
//		WithEmailSender(mailer).
//		Build()
//
// Redis backs every mutable concern: the failed-login counter, the lockout
// marker and the recovery token records. Account records live behind the
// UserDirectory capability supplied by the embedding application (the
// directory subpackage ships a Redis implementation).
//
// Boundaries the engine keeps deliberately:
//
//   - It never verifies a second factor. A login on a two-factor account
//     reports LoginRequiresTwoFactor and stops; the step-up flow belongs
//     to the caller.
//   - It never talks to identity providers. ExternalLogin consumes an
//     assertion the caller has already validated.
//   - It never renders or transports email. The EmailSender capability
//     receives the address and the opaque token, nothing else.
//   - It holds no per-login server state. Session tokens are signed JWTs;
//     logout is the caller discarding the token.
//
// Recovery surfaces are shaped against enumeration: password-reset
// requests return nil for unknown and known addresses alike, padded by a
// small random delay, and every token failure collapses to
// ErrInvalidToken.
package authkit
