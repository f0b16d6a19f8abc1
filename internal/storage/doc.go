// Package storage provides the BBolt container behind a credential database.
//
// Container structure uses four buckets:
//   - config: KDF parameters (salt, Argon2id cost), timestamps, database ID (unencrypted)
//   - private: encrypted password check record and database metadata
//   - groups: encrypted group records keyed by UUID
//   - entries: encrypted entry records keyed by UUID
//
// The unencrypted config bucket lets the database ID be read without a key,
// which is what the OS keyring integration looks passwords up by.
//
// Readers open containers read-only so that a file which is only read is
// left byte-identical. Writers build a fresh container with Replace.
package storage
