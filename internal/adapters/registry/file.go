// Package registry carrega limites de rate limit a partir de arquivos YAML.
package registry

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/michael-harrison/graph-attack/internal/core/domain"
)

// File é o formato do arquivo de limites:
//
//	limits:
//	  - operation: Query.expensiveField
//	    threshold: 5
//	    interval: 15
type File struct {
	Limits []Entry `yaml:"limits"`
}

type Entry struct {
	Operation string `yaml:"operation"`
	Threshold int    `yaml:"threshold"`
	// Interval em segundos.
	Interval int `yaml:"interval"`
}

func Load(path string) (map[domain.OperationID]domain.RateLimitSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rate limit file: %w", err)
	}
	specs, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return specs, nil
}

func Parse(data []byte) (map[domain.OperationID]domain.RateLimitSpec, error) {
	var file File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid rate limit file: %w", err)
	}

	specs := make(map[domain.OperationID]domain.RateLimitSpec, len(file.Limits))
	for i, entry := range file.Limits {
		id, ok := domain.ParseOperationID(entry.Operation)
		if !ok {
			return nil, fmt.Errorf("limits[%d]: operation must look like Type.field, got %q", i, entry.Operation)
		}
		if _, dup := specs[id]; dup {
			return nil, fmt.Errorf("limits[%d]: duplicate operation %s", i, id)
		}
		spec := domain.RateLimitSpec{
			Threshold: entry.Threshold,
			Interval:  time.Duration(entry.Interval) * time.Second,
		}
		if err := spec.Validate(); err != nil {
			return nil, fmt.Errorf("limits[%d] %s: %w", i, id, err)
		}
		specs[id] = spec
	}
	return specs, nil
}
