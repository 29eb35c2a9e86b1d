package artifact

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// BuildInfo carries the upstream build metadata published alongside offsets.
type BuildInfo struct {
	BuildNumber string    `json:"build_number,omitempty"`
	Timestamp   time.Time `json:"timestamp,omitempty"`
}

// SaveBuildInfo persists build metadata next to the product's offsets.
func (s *Store) SaveBuildInfo(productID string, info BuildInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	dir := filepath.Join(s.root, "offsets")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, productID+"_info.json"), data, 0o644)
}

// LoadBuildInfo reads build metadata for a product. When the info document is
// absent it falls back to the offsets file modification time.
func (s *Store) LoadBuildInfo(productID string) (BuildInfo, error) {
	data, err := os.ReadFile(filepath.Join(s.root, "offsets", productID+"_info.json"))
	if err == nil {
		var info BuildInfo
		if jsonErr := json.Unmarshal(data, &info); jsonErr == nil {
			return info, nil
		}
	}
	stat, err := os.Stat(filepath.Join(s.root, "offsets", productID+".json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return BuildInfo{}, ErrNotFound
		}
		return BuildInfo{}, err
	}
	return BuildInfo{Timestamp: stat.ModTime()}, nil
}
