package metadata

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Document is the YAML layout of a metadata file.
type Document struct {
	DataSources []DataSourceMetadata `yaml:"data_sources"`
	Objects     []ObjectMetadata     `yaml:"objects"`
}

// FileStore serves metadata from a YAML document held in memory. It backs
// the CLI when no metadata database is configured and the tests.
type FileStore struct {
	mu  sync.RWMutex
	doc Document
}

// NewFileStore creates a store over an in-memory document.
func NewFileStore(doc Document) *FileStore {
	return &FileStore{doc: doc}
}

// LoadFileStore reads a YAML metadata document from path.
func LoadFileStore(path string) (*FileStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading metadata file: %w", err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing metadata file: %w", err)
	}

	for _, o := range doc.Objects {
		for _, f := range o.Fields {
			if _, err := ParseFieldType(string(f.Type)); err != nil {
				return nil, fmt.Errorf("object %s field %s: %w", o.NameSingular, f.Name, err)
			}
		}
		if err := validateFields(o); err != nil {
			return nil, err
		}
		for _, r := range o.Relations {
			if _, err := ParseRelationKind(string(r.Kind)); err != nil {
				return nil, fmt.Errorf("object %s relation %s: %w", o.NameSingular, r.ID, err)
			}
		}
	}

	return NewFileStore(doc), nil
}

// LastDataSourceForWorkspace returns the newest data source of a workspace.
// Ties on CreatedAt go to the entry listed last.
func (s *FileStore) LastDataSourceForWorkspace(_ context.Context, workspaceID string) (*DataSourceMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last *DataSourceMetadata
	for i := range s.doc.DataSources {
		ds := &s.doc.DataSources[i]
		if ds.WorkspaceID != workspaceID {
			continue
		}
		if last == nil || !ds.CreatedAt.Before(last.CreatedAt) {
			last = ds
		}
	}

	if last == nil {
		return nil, fmt.Errorf("data source for workspace %s: %w", workspaceID, ErrNotFound)
	}

	found := *last
	return &found, nil
}

// FindManyWithinWorkspace returns copies of the workspace objects. The
// transaction is ignored.
func (s *FileStore) FindManyWithinWorkspace(_ context.Context, _ Tx, workspaceID string) ([]ObjectMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ObjectMetadata
	for _, o := range s.doc.Objects {
		if o.WorkspaceID != workspaceID {
			continue
		}
		c := o
		c.Fields = append([]FieldMetadata(nil), o.Fields...)
		c.Relations = append([]RelationMetadata(nil), o.Relations...)
		out = append(out, c)
	}
	return out, nil
}

// PutObject adds or replaces an object.
func (s *FileStore) PutObject(object ObjectMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.doc.Objects {
		if s.doc.Objects[i].ID == object.ID {
			s.doc.Objects[i] = object
			return
		}
	}
	s.doc.Objects = append(s.doc.Objects, object)
}
