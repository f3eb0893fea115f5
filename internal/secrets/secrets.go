// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API tokens and credentials from a directory of plain-text files.
// Each file in the directory represents one secret: the filename is the key name and the
// file contents (trimmed) are the value. A ".env" file in the same directory is parsed
// with godotenv; its keys are lower-cased with underscores turned into dashes, and
// individual key files win over it.
//
// Supported keys: ads-api-token, admin-username, admin-password, redis-url.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// Key names read by the CLI.
const (
	ADSAPIToken   = "ads-api-token"
	AdminUsername = "admin-username"
	AdminPassword = "admin-password"
	RedisURL      = "redis-url"
)

const envFile = ".env"

// Load reads all files in dir and returns a map of key name to trimmed contents.
// A missing directory or missing files are not errors; Load returns an empty map.
// Unreadable files produce a warning on stderr but do not abort.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	if err := loadEnvFile(filepath.Join(dir, envFile), secrets); err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not read secret %s: %v\n", name, err)
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

func loadEnvFile(path string, into map[string]string) error {
	env, err := godotenv.Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	for k, v := range env {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		into[strings.ReplaceAll(strings.ToLower(k), "_", "-")] = v
	}
	return nil
}
