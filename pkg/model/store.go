package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// SaveModel persists a DeviceModel to path using the atomic
// write-to-temp-then-rename pattern, so a crash mid-write never leaves a
// half-written file behind. Format (JSON or YAML) is chosen by extension.
func SaveModel(path string, m *DeviceModel) error {
	ext := strings.ToLower(filepath.Ext(path))
	var data []byte
	var err error
	if ext == ".yaml" || ext == ".yml" {
		data, err = yaml.Marshal(m)
	} else {
		data, err = json.MarshalIndent(m, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal device model: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temporary file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temporary file: %w", err)
	}
	return nil
}

// LoadModelFile reads a single DeviceModel from a JSON or YAML file,
// auto-detecting format by extension.
func LoadModelFile(path string) (*DeviceModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var m DeviceModel
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".yaml" || ext == ".yml" {
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse YAML %s: %w", path, err)
		}
	} else {
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse JSON %s: %w", path, err)
		}
	}
	return &m, nil
}

// LoadModelsFromPath scans DEVICE_MODEL_PATH (a directory, possibly
// containing a recursive glob such as "models/**/*.yaml") and returns every
// DeviceModel it can parse, sorted by id for deterministic catalog seeding.
func LoadModelsFromPath(root string) ([]*DeviceModel, error) {
	pattern := root
	if info, err := os.Stat(root); err == nil && info.IsDir() {
		pattern = filepath.Join(root, "**", "*.{json,yaml,yml}")
	}

	matches, err := expandModelGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("expand model glob %s: %w", pattern, err)
	}

	models := make([]*DeviceModel, 0, len(matches))
	for _, path := range matches {
		m, err := LoadModelFile(path)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// expandModelGlob expands a glob pattern, using doublestar for ** support
// and falling back to filepath.Glob for simple patterns.
func expandModelGlob(pattern string) ([]string, error) {
	if strings.Contains(pattern, "**") || strings.Contains(pattern, "{") {
		return doublestar.FilepathGlob(pattern)
	}
	return filepath.Glob(pattern)
}
