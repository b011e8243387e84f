// Package auth implements the Inkboard session core: issuance,
// verification and rotation of short-lived access credentials and
// long-lived renewal credentials, plus the anonymous-first identity model
// where a visitor is silently provisioned a guest identity and can later
// be promoted to a registered account without losing her boards.
//
// Design points:
//   - Renewal credentials are single-use: each is bound to a renewal
//     record, and the record's existence IS the credential's validity.
//     Rotation deletes the record first; a delete that removes nothing
//     means the credential was already spent or logged out ("revoked").
//   - Access credentials are stateless JWTs checked by signature and
//     expiry alone; no store access on the happy path.
//   - Identity is a closed union of Guest and Registered, resolved once
//     at the store boundary rather than by ad-hoc role string checks.
package auth
