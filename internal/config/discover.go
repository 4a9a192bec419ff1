package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrDataDirUnset is returned when the data root variable is empty.
var ErrDataDirUnset = errors.New("data directory variable not set")

// DataDir returns the data root named by the environment variable env.
func DataDir(env string) (string, error) {
	dir := os.Getenv(env)
	if dir == "" {
		return "", fmt.Errorf("%w: set %s to the engine data directory", ErrDataDirUnset, env)
	}
	return filepath.Abs(dir)
}

// Target is the resolved -c option.
type Target struct {
	Path    string   // absolute file or directory
	Batch   bool     // Path is a directory of configs
	Configs []string // absolute config paths in execution order
}

// ResolveTarget joins option to dataDir (unless absolute) and decides
// between single-case and batch mode. A path that does not exist is
// treated as a single config so that the case reports ConfigNotFound.
func ResolveTarget(dataDir, option, pattern string) (*Target, error) {
	if option == "" {
		return nil, fmt.Errorf("no configuration file or directory given")
	}

	path := option
	if !filepath.IsAbs(path) {
		path = filepath.Join(dataDir, path)
	}
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return &Target{Path: path, Configs: []string{path}}, nil
	}

	configs, err := Discover(path, pattern)
	if err != nil {
		return nil, err
	}
	return &Target{Path: path, Batch: true, Configs: configs}, nil
}

// Discover returns the regular files directly under dir whose names match
// pattern, sorted lexicographically. An empty pattern matches every file.
func Discover(dir, pattern string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read config dir: %w", err)
	}

	var configs []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if pattern != "" {
			ok, err := filepath.Match(pattern, e.Name())
			if err != nil {
				return nil, fmt.Errorf("config pattern %q: %w", pattern, err)
			}
			if !ok {
				continue
			}
		}
		configs = append(configs, filepath.Join(dir, e.Name()))
	}
	// os.ReadDir already sorts by name
	return configs, nil
}

// FilterCases keeps configs whose case name (file stem) matches glob.
func FilterCases(configs []string, glob string) ([]string, error) {
	if glob == "" {
		return configs, nil
	}
	var kept []string
	for _, c := range configs {
		base := filepath.Base(c)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		ok, err := filepath.Match(glob, name)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", glob, err)
		}
		if ok {
			kept = append(kept, c)
		}
	}
	return kept, nil
}
