package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// checksumFile sits next to the config file it protects.
const checksumFile = ".checksums"

// ChecksumManifest records the expected BLAKE3 hash of config files in a
// directory.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// Fingerprint computes the BLAKE3 hash of a file.
func Fingerprint(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyFingerprint checks path against an expected BLAKE3 hash.
func VerifyFingerprint(path, expected string) error {
	actual, err := Fingerprint(path)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}
	if actual != expected {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s", filepath.Base(path), expected, actual)
	}
	return nil
}

// WriteChecksums records the current hash of configPath in the directory's
// .checksums manifest, keeping entries for other files.
func WriteChecksums(configPath string) (*ChecksumManifest, error) {
	dir, name := filepath.Split(configPath)
	manifest, err := loadChecksums(dir)
	if errors.Is(err, os.ErrNotExist) {
		manifest = &ChecksumManifest{Version: 1, Hashes: make(map[string]string)}
	} else if err != nil {
		return nil, err
	}

	hash, err := Fingerprint(configPath)
	if err != nil {
		return nil, err
	}
	manifest.Hashes[name] = hash
	manifest.GeneratedAt = time.Now().UTC().Format(time.RFC3339)

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checksums: %w", err)
	}
	// Restrictive permissions: the manifest vouches for the config.
	if err := os.WriteFile(filepath.Join(dir, checksumFile), data, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write checksums: %w", err)
	}
	return manifest, nil
}

// VerifyChecksums checks configPath against the directory's .checksums
// manifest. A directory without a manifest, or a manifest without an entry
// for the file, passes.
func VerifyChecksums(configPath string) error {
	dir, name := filepath.Split(configPath)
	manifest, err := loadChecksums(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	expected, ok := manifest.Hashes[name]
	if !ok {
		return nil
	}
	if err := VerifyFingerprint(configPath, expected); err != nil {
		return fmt.Errorf("config verification failed: %w\n"+
			"If you edited this file intentionally, run: drivelink config check --write-checksum", err)
	}
	return nil
}

func loadChecksums(dir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, checksumFile))
	if err != nil {
		return nil, err
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}
	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	if manifest.Hashes == nil {
		manifest.Hashes = make(map[string]string)
	}
	return &manifest, nil
}
