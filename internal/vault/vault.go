package vault

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/louib/keepass-merge/internal/crypto"
	"github.com/louib/keepass-merge/internal/storage"
)

const (
	keyCheckString = "keepass-merge-key-check"

	checksumKey = "checksum"
	metaKey     = "meta"
)

// Open decrypts the database at path. The file is opened read-only and is
// never modified, whatever the outcome.
func Open(ctx context.Context, path string, key *Key) (*Database, error) {
	if key.Len() == 0 {
		return nil, ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s, err := storage.OpenReadOnly(path)
	if err != nil {
		return nil, classifyStorage(err)
	}
	defer s.Close()

	version, err := s.GetVersion()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if version != storage.FormatVersion {
		return nil, fmt.Errorf("%w: container version %q", ErrUnsupported, version)
	}

	kdf, err := readKDF(s)
	if err != nil {
		return nil, err
	}

	id, err := s.GetDatabaseID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	enc, err := unlock(ctx, s, kdf, key)
	if err != nil {
		return nil, err
	}
	defer enc.Destroy()

	c, err := newCodec(enc)
	if err != nil {
		return nil, err
	}
	defer c.close()

	sealedMeta, err := s.GetMetadataBytes(metaKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	var meta metaRecord
	if err := c.open(sealedMeta, &meta); err != nil {
		return nil, fmt.Errorf("failed to read database metadata: %w", err)
	}

	groups, err := readRecords[groupRecord](s, c, storage.GroupsBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to read groups: %w", err)
	}
	entries, err := readRecords[entryRecord](s, c, storage.EntriesBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}

	root, err := rebuild(meta, groups, entries)
	if err != nil {
		return nil, err
	}

	return &Database{
		ID:             id,
		Name:           meta.Name,
		Root:           root,
		DeletedObjects: meta.DeletedObjects,
		kdf:            *kdf,
	}, nil
}

// Save writes db to path encrypted with key, keeping the database's salt and
// KDF cost. The new container is written next to path and renamed over it.
func Save(ctx context.Context, db *Database, path string, key *Key) error {
	if key.Len() == 0 {
		return ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	derived, err := deriveKey(ctx, &db.kdf, key)
	if err != nil {
		return err
	}
	enc := crypto.NewEncryptor(derived)
	defer enc.Destroy()

	c, err := newCodec(enc)
	if err != nil {
		return err
	}
	defer c.close()

	// Seal everything before touching the filesystem
	checksum, err := enc.Encrypt([]byte(keyCheck()))
	if err != nil {
		return fmt.Errorf("failed to encrypt checksum: %w", err)
	}

	meta, groups, entries := flatten(db)
	sealedMeta, err := c.seal(meta)
	if err != nil {
		return fmt.Errorf("failed to encrypt metadata: %w", err)
	}
	groupRecords, err := sealRecords(c, groups, func(r groupRecord) []byte { return r.UUID[:] })
	if err != nil {
		return fmt.Errorf("failed to encrypt groups: %w", err)
	}
	entryRecords, err := sealRecords(c, entries, func(r entryRecord) []byte { return r.UUID[:] })
	if err != nil {
		return fmt.Errorf("failed to encrypt entries: %w", err)
	}

	return storage.Replace(path, func(s *storage.Storage) error {
		if err := s.SetSalt(db.kdf.Salt); err != nil {
			return fmt.Errorf("failed to store salt: %w", err)
		}
		if err := s.SetKDFParams(db.kdf.Time, db.kdf.Memory, db.kdf.Threads); err != nil {
			return fmt.Errorf("failed to store kdf parameters: %w", err)
		}
		if err := s.SetDatabaseID(db.ID); err != nil {
			return fmt.Errorf("failed to store database id: %w", err)
		}
		if err := s.StoreMetadataBytes(checksumKey, checksum); err != nil {
			return fmt.Errorf("failed to store checksum: %w", err)
		}
		if err := s.StoreMetadataBytes(metaKey, sealedMeta); err != nil {
			return fmt.Errorf("failed to store metadata: %w", err)
		}
		if err := s.PutRecords(storage.GroupsBucket, groupRecords); err != nil {
			return fmt.Errorf("failed to store groups: %w", err)
		}
		if err := s.PutRecords(storage.EntriesBucket, entryRecords); err != nil {
			return fmt.Errorf("failed to store entries: %w", err)
		}
		return nil
	})
}

// ReadID returns the plaintext database ID without decrypting anything
func ReadID(path string) (string, error) {
	s, err := storage.OpenReadOnly(path)
	if err != nil {
		return "", classifyStorage(err)
	}
	defer s.Close()

	id, err := s.GetDatabaseID()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return id, nil
}

func classifyStorage(err error) error {
	if errors.Is(err, storage.ErrNotInitialized) || errors.Is(err, storage.ErrInvalidContainer) {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return err
}

func readKDF(s *storage.Storage) (*crypto.KDF, error) {
	salt, err := s.GetSalt()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	t, m, p, err := s.GetKDFParams()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	kdf := &crypto.KDF{Salt: salt, Time: t, Memory: m, Threads: p}
	if err := kdf.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return kdf, nil
}

func deriveKey(ctx context.Context, kdf *crypto.KDF, key *Key) ([]byte, error) {
	composite, err := key.composite(ctx, kdf.Salt)
	if err != nil {
		return nil, err
	}
	defer crypto.ClearBytes(composite)
	return kdf.DeriveKey(composite), nil
}

// unlock derives the encryption key and verifies it against the stored
// checksum
func unlock(ctx context.Context, s *storage.Storage, kdf *crypto.KDF, key *Key) (*crypto.Encryptor, error) {
	sealed, err := s.GetMetadataBytes(checksumKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	derived, err := deriveKey(ctx, kdf, key)
	if err != nil {
		return nil, err
	}
	enc := crypto.NewEncryptor(derived)

	check, err := enc.Decrypt(sealed)
	if err != nil {
		enc.Destroy()
		if errors.Is(err, crypto.ErrAuthFailed) {
			return nil, ErrBadCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if !crypto.ConstantTimeCompare(check, []byte(keyCheck())) {
		enc.Destroy()
		return nil, ErrBadCredentials
	}
	return enc, nil
}

func keyCheck() string {
	sum := sha256.Sum256([]byte(keyCheckString))
	return hex.EncodeToString(sum[:])
}

func readRecords[T any](s *storage.Storage, c *codec, bucket []byte) ([]T, error) {
	records, err := s.GetRecords(bucket)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	out := make([]T, 0, len(records))
	for _, r := range records {
		var v T
		if err := c.open(r.Data, &v); err != nil {
			return nil, fmt.Errorf("record %x: %w", r.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func sealRecords[T any](c *codec, items []T, id func(T) []byte) ([]storage.Record, error) {
	out := make([]storage.Record, 0, len(items))
	for _, item := range items {
		data, err := c.seal(item)
		if err != nil {
			return nil, err
		}
		out = append(out, storage.Record{ID: id(item), Data: data})
	}
	return out, nil
}
