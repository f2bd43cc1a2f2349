package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Load reads and validates the cluster configuration from a cluster directory.
// The directory must contain a cluster.conf file with key=value pairs.
// Validation fails fast on the first missing required key, before any
// platform call is made.
func Load(dir string) (*ClusterConfig, error) {
	path := filepath.Join(dir, ConfigFileName)
	raw, err := parseFile(path)
	if err != nil {
		return nil, err
	}

	var cfg ClusterConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true, // values arrive as strings
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build config decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}

	if cfg.NodeImage == "" && cfg.Name != "" {
		cfg.NodeImage = fmt.Sprintf("registry.fly.io/%s:latest", cfg.Name)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// parseFile reads a key=value file into a map. Blank lines and lines starting
// with '#' are ignored. Values may be optionally double-quoted.
func parseFile(path string) (map[string]string, error) {
	// #nosec G304
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	raw := make(map[string]string)
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, value, ok := strings.Cut(text, "=")
		if !ok {
			return nil, fmt.Errorf("%s:%d: not a key=value line: %q", path, line, text)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"`)
		raw[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan config file: %w", err)
	}
	return raw, nil
}
