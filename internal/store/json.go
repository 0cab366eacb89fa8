package store

import (
	"context"
	"fmt"
	"os"

	"github.com/aelpxy/stash/internal/utils"
	"github.com/aelpxy/stash/pkg/models"
	"github.com/goccy/go-json"
)

const jsonLayoutVersion = 1

type jsonLayout struct {
	Version   int               `json:"version"`
	Instances []models.Instance `json:"instances"`
}

type JSONStore struct {
	path string
}

func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

func (s *JSONStore) Location() string {
	return s.path
}

func (s *JSONStore) Load(ctx context.Context) ([]models.Instance, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.Instance{}, nil
		}
		return nil, fmt.Errorf("failed to read instance store: %w", err)
	}

	var layout jsonLayout
	if err := json.Unmarshal(data, &layout); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	if layout.Version != jsonLayoutVersion {
		return nil, fmt.Errorf("%w: %s: unsupported layout version %d", ErrCorrupt, s.path, layout.Version)
	}
	if layout.Instances == nil {
		layout.Instances = []models.Instance{}
	}

	if err := Check(layout.Instances); err != nil {
		return nil, err
	}

	return layout.Instances, nil
}

func (s *JSONStore) Save(ctx context.Context, instances []models.Instance) error {
	if err := Check(instances); err != nil {
		return err
	}

	layout := jsonLayout{Version: jsonLayoutVersion, Instances: instances}
	if layout.Instances == nil {
		layout.Instances = []models.Instance{}
	}

	data, err := json.MarshalIndent(layout, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal instance store: %w", err)
	}

	if err := utils.AtomicWriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write instance store: %w", err)
	}

	return nil
}

func (s *JSONStore) Close() error {
	return nil
}
