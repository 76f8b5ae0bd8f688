// Package store persists simulation results. A run "file" is a directory
// holding gob-encoded datasets under slash-separated group paths plus a
// yaml metadata document; the scratch store is a keyed accumulation table
// that lives for one series invocation.
package store

import (
	"encoding/gob"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/emsim-dev/emsim/internal/config"
)

const (
	metadataName = "metadata.yaml"
	datasetExt   = ".ds"
)

// File is an open run store rooted at a directory.
type File struct {
	root string
}

type dataset struct {
	Dims []int
	Real []float64
	Cplx []complex128
}

// Create truncates and opens a run store at path.
func Create(path string) (*File, error) {
	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return &File{root: path}, nil
}

// Open opens an existing run store.
func Open(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store: %s is not a run store", path)
	}
	return &File{root: path}, nil
}

func (f *File) Path() string { return f.root }

func (f *File) datasetPath(group string) string {
	return filepath.Join(f.root, filepath.FromSlash(group)+datasetExt)
}

func (f *File) write(group string, ds dataset) error {
	path := f.datasetPath(group)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer out.Close()
	if err := gob.NewEncoder(out).Encode(ds); err != nil {
		return fmt.Errorf("store: encoding %s: %w", group, err)
	}
	return nil
}

func (f *File) read(group string) (dataset, error) {
	in, err := os.Open(f.datasetPath(group))
	if err != nil {
		return dataset{}, fmt.Errorf("store: %w", err)
	}
	defer in.Close()
	var ds dataset
	if err := gob.NewDecoder(in).Decode(&ds); err != nil {
		return dataset{}, fmt.Errorf("store: decoding %s: %w", group, err)
	}
	return ds, nil
}

// WriteDataset stores a real-valued array under the group path.
func (f *File) WriteDataset(group string, dims []int, data []float64) error {
	return f.write(group, dataset{Dims: dims, Real: data})
}

// ReadDataset loads a real-valued array.
func (f *File) ReadDataset(group string) ([]int, []float64, error) {
	ds, err := f.read(group)
	if err != nil {
		return nil, nil, err
	}
	return ds.Dims, ds.Real, nil
}

// WriteComplexDataset stores a complex-valued array under the group path.
func (f *File) WriteComplexDataset(group string, dims []int, data []complex128) error {
	return f.write(group, dataset{Dims: dims, Cplx: data})
}

// ReadComplexDataset loads a complex-valued array.
func (f *File) ReadComplexDataset(group string) ([]int, []complex128, error) {
	ds, err := f.read(group)
	if err != nil {
		return nil, nil, err
	}
	return ds.Dims, ds.Cplx, nil
}

// WriteMetadata persists the run configuration alongside the datasets.
func (f *File) WriteMetadata(cfg *config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	return os.WriteFile(filepath.Join(f.root, metadataName), data, 0644)
}

// ReadMetadata loads the run configuration.
func (f *File) ReadMetadata() (*config.Config, error) {
	data, err := os.ReadFile(filepath.Join(f.root, metadataName))
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	cfg := &config.Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return cfg, nil
}

// Datasets lists every group path in the store, in lexical order.
func (f *File) Datasets() ([]string, error) {
	var groups []string
	err := filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, datasetExt) {
			return nil
		}
		rel, err := filepath.Rel(f.root, path)
		if err != nil {
			return err
		}
		groups = append(groups, strings.TrimSuffix(filepath.ToSlash(rel), datasetExt))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	return groups, nil
}

// Close releases the handle. Directory-backed stores hold no OS resources
// between operations, but callers treat File as an open/close lifecycle.
func (f *File) Close() error { return nil }
