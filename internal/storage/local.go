package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LocalStore keeps artifacts on the local filesystem under Dir. Each blob gets a
// sidecar <name>.meta.json holding its metadata.
type LocalStore struct {
	Dir    string
	Bucket string
}

func NewLocalStore(dir, bucket string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact dir: %w", err)
	}
	return &LocalStore{Dir: dir, Bucket: bucket}, nil
}

// Put writes data under key unless a blob already exists there. Existing blobs are
// never overwritten; their location is returned as is.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte, meta map[string]string) (Location, error) {
	if err := ctx.Err(); err != nil {
		return Location{}, writeFailed(key, err)
	}

	target, err := s.resolve(key)
	if err != nil {
		return Location{}, writeFailed(key, err)
	}
	loc := Location{
		Bucket: s.Bucket,
		Path:   filepath.ToSlash(key),
		URL:    "file://" + filepath.ToSlash(target),
	}

	if _, err := os.Stat(target); err == nil {
		return loc, nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Location{}, writeFailed(key, err)
	}

	// Write to a unique temp name first so a crash never leaves a partial blob under key.
	tmp := filepath.Join(filepath.Dir(target), "."+uuid.New().String()+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return Location{}, writeFailed(key, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return Location{}, writeFailed(key, err)
	}

	if len(meta) > 0 {
		b, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return Location{}, writeFailed(key+" metadata", err)
		}
		if err := os.WriteFile(target+".meta.json", b, 0o644); err != nil {
			return Location{}, writeFailed(key+" metadata", err)
		}
	}

	return loc, nil
}

// metadata reads back the sidecar metadata of key.
func (s *LocalStore) metadata(key string) (map[string]string, error) {
	target, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(target + ".meta.json")
	if err != nil {
		return nil, err
	}
	meta := map[string]string{}
	if err := json.Unmarshal(b, &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// resolve maps key into Dir and rejects keys that would escape it.
func (s *LocalStore) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.New("invalid artifact key")
	}
	return filepath.Join(s.Dir, clean), nil
}
