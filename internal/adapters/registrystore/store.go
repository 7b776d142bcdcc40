// Package registrystore persists registry centroids in a bbolt file. The file
// is opened per operation so the offline builder and a running server can
// share it: the server takes a shared read lock only while loading.
package registrystore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/okian/facetally/internal/domain/embedding"
	"github.com/okian/facetally/internal/domain/registry"
	"github.com/okian/facetally/pkg/logger"
	"go.etcd.io/bbolt"
)

var (
	bucketCentroids = []byte("centroids")
	bucketMeta      = []byte("meta")

	keyBuiltAt = []byte("built_at")
	keyCount   = []byte("count")
)

// record is the stored form of one centroid.
type record struct {
	Dim    int       `json:"dim"`
	Vector []float32 `json:"vector"`
}

// Meta describes the last saved registry.
type Meta struct {
	BuiltAt time.Time
	Count   int
}

// BoltStore reads and writes the centroid file.
type BoltStore struct {
	path        string
	lockTimeout time.Duration
	logger      logger.Logger
}

// New returns a store for the bbolt file at path.
func New(path string, opts ...Option) (*BoltStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrNoPath
	}
	s := &BoltStore{
		path:        path,
		lockTimeout: 5 * time.Second,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the file path.
func (s *BoltStore) Path() string { return s.path }

func (s *BoltStore) open(readOnly bool) (*bbolt.DB, error) {
	mode := os.FileMode(0o600)
	return bbolt.Open(s.path, mode, &bbolt.Options{Timeout: s.lockTimeout, ReadOnly: readOnly})
}

// exists reports whether the file is there; a missing file is an empty store.
func (s *BoltStore) exists() (bool, error) {
	_, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Load returns every stored centroid keyed by name. A missing file or bucket
// yields an empty map.
func (s *BoltStore) Load(ctx context.Context) (map[string]embedding.Vector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ok, err := s.exists()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", s.path, err)
	}
	out := make(map[string]embedding.Vector)
	if !ok {
		s.logger.Warn(ctx, "registry file not found, starting empty", logger.String("path", s.path))
		return out, nil
	}

	db, err := s.open(true)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer db.Close()

	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketCentroids)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("%w: %s: %w", ErrCorruptRecord, k, err)
			}
			if rec.Dim == 0 || len(rec.Vector) != rec.Dim {
				return fmt.Errorf("%w: %s: dim %d, got %d values", ErrCorruptRecord, k, rec.Dim, len(rec.Vector))
			}
			out[string(k)] = embedding.Vector(rec.Vector)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "registry loaded", logger.String("path", s.path), logger.Int("identities", len(out)))
	return out, nil
}

// Save replaces the stored centroids with those of snap in a single
// transaction, so a concurrent Load sees either the old or the new set.
func (s *BoltStore) Save(ctx context.Context, snap *registry.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap == nil || snap.Len() == 0 {
		return ErrEmptySnapshot
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(s.path), err)
	}

	db, err := s.open(false)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.path, err)
	}
	defer db.Close()

	centroids := snap.Centroids()
	err = db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketCentroids) != nil {
			if err := tx.DeleteBucket(bucketCentroids); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket(bucketCentroids)
		if err != nil {
			return err
		}
		for _, name := range snap.Names() {
			vec := centroids[name]
			data, err := json.Marshal(record{Dim: len(vec), Vector: vec})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(name), data); err != nil {
				return err
			}
		}

		m, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if err := m.Put(keyBuiltAt, []byte(snap.BuiltAt().UTC().Format(time.RFC3339))); err != nil {
			return err
		}
		return m.Put(keyCount, []byte(strconv.Itoa(snap.Len())))
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", s.path, err)
	}
	s.logger.Info(ctx, "registry saved", logger.String("path", s.path), logger.Int("identities", snap.Len()))
	return nil
}

// Meta returns what the last Save recorded. A missing file yields zero Meta.
func (s *BoltStore) Meta(ctx context.Context) (Meta, error) {
	if err := ctx.Err(); err != nil {
		return Meta{}, err
	}
	ok, err := s.exists()
	if err != nil || !ok {
		return Meta{}, err
	}
	db, err := s.open(true)
	if err != nil {
		return Meta{}, fmt.Errorf("open %s: %w", s.path, err)
	}
	defer db.Close()

	var meta Meta
	err = db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if b == nil {
			return nil
		}
		if v := b.Get(keyBuiltAt); v != nil {
			t, err := time.Parse(time.RFC3339, string(v))
			if err != nil {
				return fmt.Errorf("%w: built_at: %w", ErrCorruptRecord, err)
			}
			meta.BuiltAt = t
		}
		if v := b.Get(keyCount); v != nil {
			n, err := strconv.Atoi(string(v))
			if err != nil {
				return fmt.Errorf("%w: count: %w", ErrCorruptRecord, err)
			}
			meta.Count = n
		}
		return nil
	})
	return meta, err
}
