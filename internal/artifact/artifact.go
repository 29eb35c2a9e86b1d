// Package artifact maps (product, version) to encrypted blobs on durable
// storage. Exactly one blob is retained per product; the newest blob is
// selected by the creation-order token embedded in the filename, not by
// filesystem mtime.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/gavrikov2044-bot/cs-legit/internal/codec"
	"github.com/gavrikov2044-bot/cs-legit/internal/obs"
)

const blobSuffix = ".enc"

// ErrNotFound indicates no stored artifact matches the request.
var ErrNotFound = errors.New("artifact: not found")

// Stored describes a persisted blob. Hash covers the encrypted bytes.
type Stored struct {
	Path string
	Hash string
}

// Store persists encrypted artifacts and per-product offsets files under a
// single storage root.
type Store struct {
	root  string
	codec *codec.Codec
}

// NewStore creates the on-disk layout under root.
func NewStore(root string, c *codec.Codec) (*Store, error) {
	for _, dir := range []string{filepath.Join(root, "games"), filepath.Join(root, "offsets")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("artifact: init storage: %w", err)
		}
	}
	return &Store{root: root, codec: c}, nil
}

// Save encrypts source bytes and persists them as the product's only blob.
// Previously stored blobs for the product are deleted afterwards; individual
// delete failures are logged and do not abort the store operation.
func (s *Store) Save(productID, version, name string, source []byte) (Stored, error) {
	dir := filepath.Join(s.root, "games", productID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Stored{}, err
	}

	blob, err := s.codec.Encrypt(source)
	if err != nil {
		return Stored{}, err
	}

	token := ulid.Make().String()
	fileName := fmt.Sprintf("%s_%s_%s%s", sanitize(version), token, sanitize(name), blobSuffix)
	fullPath := filepath.Join(dir, fileName)
	if err := os.WriteFile(fullPath, blob, 0o644); err != nil {
		return Stored{}, err
	}

	sum := sha256.Sum256(blob)

	s.pruneOld(dir, fileName, productID)

	rel, err := filepath.Rel(s.root, fullPath)
	if err != nil {
		rel = fullPath
	}
	return Stored{Path: filepath.ToSlash(rel), Hash: hex.EncodeToString(sum[:])}, nil
}

// SaveFile encrypts a plaintext staging file and removes the staging copy.
func (s *Store) SaveFile(productID, version, stagingPath string) (Stored, error) {
	source, err := os.ReadFile(stagingPath)
	if err != nil {
		return Stored{}, err
	}
	stored, err := s.Save(productID, version, filepath.Base(stagingPath), source)
	if err != nil {
		return Stored{}, err
	}
	if err := os.Remove(stagingPath); err != nil {
		obs.LogEvent("warn", "staging cleanup failed", map[string]any{
			"path": stagingPath, "error": err.Error(),
		})
	}
	return stored, nil
}

// pruneOld enforces the one-blob-per-product retention policy.
func (s *Store) pruneOld(dir, keep, productID string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == keep || !strings.HasSuffix(name, blobSuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			obs.LogEvent("warn", "retention delete failed", map[string]any{
				"product": productID, "file": name, "error": err.Error(),
			})
		}
	}
}

// FetchLatest decrypts the newest blob for a product. Newest is decided by
// the order token inside the filename, sorted descending.
func (s *Store) FetchLatest(productID string) ([]byte, string, error) {
	dir := filepath.Join(s.root, "games", productID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, "", ErrNotFound
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), blobSuffix) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, "", ErrNotFound
	}
	sort.Slice(names, func(i, j int) bool {
		return orderToken(names[i]) > orderToken(names[j])
	})
	latest := names[0]
	plaintext, err := s.decryptFile(filepath.Join(dir, latest))
	if err != nil {
		return nil, "", err
	}
	return plaintext, strings.TrimSuffix(latest, blobSuffix), nil
}

// FetchPath decrypts the blob stored at a registered relative path.
func (s *Store) FetchPath(relPath string) ([]byte, error) {
	full := filepath.Join(s.root, filepath.FromSlash(relPath))
	return s.decryptFile(full)
}

func (s *Store) decryptFile(path string) ([]byte, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.codec.Decrypt(blob)
}

// BlobVersion recovers the version segment a blob name was written with, so a
// delivery can still be labeled when no catalog row backs the blob.
func BlobVersion(name string) string {
	parts := strings.SplitN(name, "_", 2)
	if len(parts) < 2 {
		return ""
	}
	return parts[0]
}

// orderToken extracts the creation-order token embedded between the first
// and second underscore of a blob filename.
func orderToken(name string) string {
	parts := strings.SplitN(name, "_", 3)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	replacer := strings.NewReplacer("_", "-", string(filepath.Separator), "-", "..", "-")
	s = replacer.Replace(s)
	if s == "" {
		s = "build"
	}
	return s
}

// --- offsets files ---

// SaveOffsets persists the raw offsets document for a product.
func (s *Store) SaveOffsets(productID string, doc []byte) error {
	dir := filepath.Join(s.root, "offsets")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, productID+".json"), doc, 0o644)
}

// Offsets returns the raw offsets document.
func (s *Store) Offsets(productID string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, "offsets", productID+".json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// OffsetsHash hashes the current offsets document so clients can cheaply
// detect updates.
func (s *Store) OffsetsHash(productID string) (string, error) {
	data, err := s.Offsets(productID)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// OffsetsAge reports how long ago the offsets document was last written.
func (s *Store) OffsetsAge(productID string, now time.Time) (time.Duration, error) {
	info, err := os.Stat(filepath.Join(s.root, "offsets", productID+".json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return now.Sub(info.ModTime()), nil
}
