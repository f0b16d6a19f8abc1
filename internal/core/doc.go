// Package core runs keepass-merge operations on top of the vault package.
//
// Operations:
//   - Merger: merge a source database into a destination database
//   - Repairer: add missing timestamps so that a database can be merged
//   - CreateDatabase: create a new empty database
//
// A merge goes through fixed states:
//
//	Init → DestKeyResolved → DestOpened → SrcKeyResolved → SrcOpened →
//	Merged → Decided → Terminal
//
// The destination is only written after the Decided state chose Persist:
// merge warnings block it unless forced, a dry run never persists, and a
// merge without events has nothing to save.
//
// Failures are *Error values carrying a Class and the database Role they
// belong to.
package core
