// Package vault opens, merges and saves credential databases.
//
// A database is a tree of groups holding entries, identified by UUID and
// stamped with creation, modification and location-change times. It is
// decrypted with a Key made of up to one factor of each kind:
//   - Password: a typed secret
//   - Keyfile: the raw bytes of a key file
//   - ChallengeResponse: the answer of a hardware device to the database salt
//
// Open never writes to the file it reads. Save writes a new container and
// renames it over the old one.
//
// Merge matches groups and entries by UUID:
//   - missing in the destination: added (unless the destination deleted it later)
//   - modified later in the source: updated, previous version kept in history
//   - relocated later in the source: moved
//   - deleted later in the source: deleted
//
// Divergent copies without a usable timestamp order become warnings rather
// than silent choices.
package vault
