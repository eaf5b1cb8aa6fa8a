package dialogue

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for content files with an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported content format")

// Extensions lists the content file extensions the loader understands.
var Extensions = []string{".json", ".yaml", ".yml", ".toml"}

// LoadFile reads one graph from a JSON, YAML or TOML file. Decoding is
// strict: unknown fields are rejected.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	g, err := Decode(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("file %s: %w", path, err)
	}
	return g, nil
}

// Decode parses graph data in the format named by ext.
func Decode(data []byte, ext string) (*Graph, error) {
	var jsonData []byte
	switch strings.ToLower(ext) {
	case ".json":
		if !json.Valid(data) {
			return nil, fmt.Errorf("invalid JSON")
		}
		jsonData = data

	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
		b, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("YAML document cannot be represented as JSON: %w", err)
		}
		jsonData = b

	case ".toml":
		var doc map[string]any
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("invalid TOML: %w", err)
		}
		b, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("TOML document cannot be represented as JSON: %w", err)
		}
		jsonData = b

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	var g Graph
	decoder := json.NewDecoder(bytes.NewReader(jsonData))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&g); err != nil {
		return nil, fmt.Errorf("failed strict unmarshaling: %w", err)
	}
	return &g, nil
}

// LoadDir loads every content file under dir, recursively, in lexical path
// order. Files whose extension is not in Extensions are skipped.
func LoadDir(dir string) ([]*Graph, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isContentFile(path) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk content directory: %w", err)
	}
	sort.Strings(paths)

	graphs := make([]*Graph, 0, len(paths))
	for _, path := range paths {
		g, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		graphs = append(graphs, g)
	}
	return graphs, nil
}

// LoadLibrary loads dir and mounts every graph found.
func LoadLibrary(dir string) (*Library, error) {
	graphs, err := LoadDir(dir)
	if err != nil {
		return nil, err
	}
	lib := NewLibrary()
	if err := lib.Mount(graphs...); err != nil {
		return nil, err
	}
	return lib, nil
}

func isContentFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
