package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
)

// FormatVersion is the container layout version written by Initialize
const FormatVersion = "1"

// Bucket names
var (
	ConfigBucket  = []byte("config")  // KDF params (salt, cost), timestamps, database ID - unencrypted
	PrivateBucket = []byte("private") // Encrypted checksum + database metadata
	GroupsBucket  = []byte("groups")  // Encrypted group records keyed by UUID
	EntriesBucket = []byte("entries") // Encrypted entry records keyed by UUID
)

// Config keys
var (
	ConfigVersion    = []byte("version")
	ConfigCreated    = []byte("created")
	ConfigModified   = []byte("modified")
	ConfigSalt       = []byte("salt")
	ConfigKDFTime    = []byte("kdf_time")
	ConfigKDFMemory  = []byte("kdf_memory")
	ConfigKDFThreads = []byte("kdf_threads")
	ConfigDatabaseID = []byte("database_id")
)

var (
	ErrNotInitialized   = errors.New("container not initialized")
	ErrInvalidContainer = errors.New("not a valid container")
	ErrMissingBucket    = errors.New("bucket not found")
	ErrMissingKey       = errors.New("key not found")
)

// Record is one encrypted value in a record bucket
type Record struct {
	ID   []byte
	Data []byte
}

// Storage provides BBolt-based storage for credential databases
type Storage struct {
	db *bolt.DB
}

// Open opens or creates a container for writing
func Open(path string) (*Storage, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Storage{db: db}, nil
}

// OpenReadOnly opens an existing container without ever writing to it.
// Empty files are rejected up front because bbolt would initialize them.
func OpenReadOnly(path string) (*Storage, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() == 0 {
		return nil, ErrNotInitialized
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{ReadOnly: true, Timeout: time.Second})
	if err != nil {
		if errors.Is(err, berrors.ErrTimeout) || errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidContainer, err)
	}

	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the file backing the container
func (s *Storage) Path() string {
	return s.db.Path()
}

// Initialize creates the bucket structure for a new container
func (s *Storage) Initialize() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{ConfigBucket, PrivateBucket, GroupsBucket, EntriesBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		config := tx.Bucket(ConfigBucket)
		if err := config.Put(ConfigVersion, []byte(FormatVersion)); err != nil {
			return err
		}

		created, _ := time.Now().MarshalBinary()
		if err := config.Put(ConfigCreated, created); err != nil {
			return err
		}
		return config.Put(ConfigModified, created)
	})
}

// IsInitialized checks if the container has been initialized
func (s *Storage) IsInitialized() (bool, error) {
	var initialized bool
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config != nil && config.Get(ConfigVersion) != nil {
			initialized = true
		}
		return nil
	})
	return initialized, err
}

// GetVersion returns the container layout version
func (s *Storage) GetVersion() (string, error) {
	data, err := s.getConfig(ConfigVersion)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SetSalt stores the KDF salt
func (s *Storage) SetSalt(salt []byte) error {
	return s.putConfig(ConfigSalt, salt)
}

// GetSalt retrieves the KDF salt
func (s *Storage) GetSalt() ([]byte, error) {
	return s.getConfig(ConfigSalt)
}

// SetKDFParams stores the Argon2id cost parameters
func (s *Storage) SetKDFParams(time, memory uint32, threads uint8) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return ErrNotInitialized
		}
		if err := config.Put(ConfigKDFTime, encodeUint32(time)); err != nil {
			return err
		}
		if err := config.Put(ConfigKDFMemory, encodeUint32(memory)); err != nil {
			return err
		}
		return config.Put(ConfigKDFThreads, []byte{threads})
	})
}

// GetKDFParams retrieves the Argon2id cost parameters
func (s *Storage) GetKDFParams() (time, memory uint32, threads uint8, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return ErrNotInitialized
		}
		t := config.Get(ConfigKDFTime)
		m := config.Get(ConfigKDFMemory)
		p := config.Get(ConfigKDFThreads)
		if len(t) != 4 || len(m) != 4 || len(p) != 1 {
			return fmt.Errorf("kdf parameters: %w", ErrMissingKey)
		}
		time = binary.BigEndian.Uint32(t)
		memory = binary.BigEndian.Uint32(m)
		threads = p[0]
		return nil
	})
	return time, memory, threads, err
}

// SetDatabaseID stores the database ID used for keyring lookups
func (s *Storage) SetDatabaseID(id string) error {
	return s.putConfig(ConfigDatabaseID, []byte(id))
}

// GetDatabaseID retrieves the database ID from config bucket
func (s *Storage) GetDatabaseID() (string, error) {
	data, err := s.getConfig(ConfigDatabaseID)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// StoreMetadataBytes stores encrypted metadata bytes
func (s *Storage) StoreMetadataBytes(key string, encryptedData []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		private := tx.Bucket(PrivateBucket)
		if private == nil {
			return ErrNotInitialized
		}
		return private.Put([]byte(key), encryptedData)
	})
}

// GetMetadataBytes retrieves encrypted metadata bytes
func (s *Storage) GetMetadataBytes(key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		private := tx.Bucket(PrivateBucket)
		if private == nil {
			return fmt.Errorf("%s: %w", PrivateBucket, ErrMissingBucket)
		}
		data = private.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("metadata %s: %w", key, ErrMissingKey)
		}
		// Make a copy since the slice is only valid during the transaction
		data = append([]byte(nil), data...)
		return nil
	})
	return data, err
}

// PutRecords stores a batch of records in one transaction
func (s *Storage) PutRecords(bucket []byte, records []Record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("%s: %w", bucket, ErrMissingBucket)
		}
		for _, r := range records {
			if err := b.Put(r.ID, r.Data); err != nil {
				return fmt.Errorf("failed to store record in %s: %w", bucket, err)
			}
		}
		return nil
	})
}

// GetRecords returns every record of a bucket in key order
func (s *Storage) GetRecords(bucket []byte) ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("%s: %w", bucket, ErrMissingBucket)
		}
		return b.ForEach(func(k, v []byte) error {
			records = append(records, Record{
				ID:   append([]byte(nil), k...),
				Data: append([]byte(nil), v...),
			})
			return nil
		})
	})
	return records, err
}

// Replace writes a fresh container next to path through fill and moves it
// over path. The previous file is kept until the rename succeeds.
func Replace(path string, fill func(*Storage) error) error {
	tmpPath := path + ".tmp"
	_ = os.Remove(tmpPath)

	dst, err := Open(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}

	if err := dst.Initialize(); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := fill(dst); err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close database: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace database: %w", err)
	}
	return nil
}

func (s *Storage) putConfig(key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return ErrNotInitialized
		}
		return config.Put(key, value)
	})
}

func (s *Storage) getConfig(key []byte) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		config := tx.Bucket(ConfigBucket)
		if config == nil {
			return ErrNotInitialized
		}
		data = config.Get(key)
		if data == nil {
			return fmt.Errorf("%s: %w", key, ErrMissingKey)
		}
		// Make a copy since the slice is only valid during the transaction
		data = append([]byte(nil), data...)
		return nil
	})
	return data, err
}

func encodeUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}
