// Package crypto provides cryptographic operations for keepass-merge databases.
//
// Encryption uses XChaCha20-Poly1305 with:
//   - 32-byte key derived from the composite database key via Argon2id
//   - 24-byte random nonce per encryption operation
//   - Authenticated encryption prevents tampering
//
// Key derivation uses Argon2id with:
//   - 32-byte random salt (stored unencrypted, also used as the
//     challenge sent to hardware challenge-response devices)
//   - cost parameters stored next to the salt
//
// Memory safety:
//   - Use ClearBytes() to zero sensitive data after use
//   - Call Encryptor.Destroy() when done with encryption operations
package crypto
