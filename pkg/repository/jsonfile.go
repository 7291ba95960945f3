package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	domainerrors "github.com/awslabs/host-factory-controlplane/pkg/errors"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/machine"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/request"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/template"
)

// schemaVersion tags every persisted payload so a future migration can
// detect and upgrade older files, per spec.md §6's "schema version tag for
// forward-compatible migration" requirement.
const schemaVersion = 1

type fileEnvelope[T any] struct {
	SchemaVersion int          `json:"schemaVersion"`
	Items         map[string]T `json:"items"`
}

// jsonFileStore is the shared load/flush machinery behind every JSON-file
// repository adapter: the whole collection round-trips as one file per
// aggregate type, guarded by a mutex, written atomically via a temp-file
// rename so a crash mid-write never corrupts the file in place.
type jsonFileStore[T any] struct {
	mu   sync.Mutex
	path string
}

func newJSONFileStore[T any](path string) *jsonFileStore[T] {
	return &jsonFileStore[T]{path: path}
}

func (s *jsonFileStore[T]) load() (map[string]T, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]T{}, nil
	}
	if err != nil {
		return nil, domainerrors.New(domainerrors.Infra, "read repository file", err)
	}
	var env fileEnvelope[T]
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, domainerrors.New(domainerrors.Infra, "decode repository file", err)
	}
	if env.Items == nil {
		env.Items = map[string]T{}
	}
	return env.Items, nil
}

func (s *jsonFileStore[T]) flush(items map[string]T) error {
	env := fileEnvelope[T]{SchemaVersion: schemaVersion, Items: items}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return domainerrors.New(domainerrors.Infra, "encode repository file", err)
	}
	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return domainerrors.New(domainerrors.Infra, "create repository directory", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return domainerrors.New(domainerrors.Infra, "write repository file", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return domainerrors.New(domainerrors.Infra, "commit repository file", err)
	}
	return nil
}

// JSONFileRequests is a request.Repository backed by a single JSON file,
// spec.md §6's `storage.strategy: json`.
type JSONFileRequests struct{ store *jsonFileStore[*request.Request] }

func NewJSONFileRequests(path string) *JSONFileRequests {
	return &JSONFileRequests{store: newJSONFileStore[*request.Request](path)}
}

func (r *JSONFileRequests) Save(_ context.Context, req *request.Request) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	items, err := r.store.load()
	if err != nil {
		return err
	}
	items[req.ID] = req
	return r.store.flush(items)
}

func (r *JSONFileRequests) FindByID(_ context.Context, id string) (*request.Request, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	items, err := r.store.load()
	if err != nil {
		return nil, err
	}
	req, ok := items[id]
	if !ok {
		return nil, domainerrors.New(domainerrors.NotFound, "request "+id+" not found", nil)
	}
	return req, nil
}

func (r *JSONFileRequests) List(_ context.Context) ([]*request.Request, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	items, err := r.store.load()
	if err != nil {
		return nil, err
	}
	out := make([]*request.Request, 0, len(items))
	for _, req := range items {
		out = append(out, req)
	}
	return out, nil
}

// JSONFileMachines is a machine.Repository backed by a single JSON file.
type JSONFileMachines struct{ store *jsonFileStore[*machine.Machine] }

func NewJSONFileMachines(path string) *JSONFileMachines {
	return &JSONFileMachines{store: newJSONFileStore[*machine.Machine](path)}
}

func (r *JSONFileMachines) Save(_ context.Context, m *machine.Machine) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	items, err := r.store.load()
	if err != nil {
		return err
	}
	items[m.InstanceID] = m
	return r.store.flush(items)
}

func (r *JSONFileMachines) FindByID(_ context.Context, id string) (*machine.Machine, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	items, err := r.store.load()
	if err != nil {
		return nil, err
	}
	m, ok := items[id]
	if !ok {
		return nil, domainerrors.New(domainerrors.NotFound, "machine "+id+" not found", nil)
	}
	return m, nil
}

func (r *JSONFileMachines) ListByRequestID(_ context.Context, requestID string) ([]*machine.Machine, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	items, err := r.store.load()
	if err != nil {
		return nil, err
	}
	var out []*machine.Machine
	for _, m := range items {
		if m.RequestID == requestID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *JSONFileMachines) List(_ context.Context) ([]*machine.Machine, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	items, err := r.store.load()
	if err != nil {
		return nil, err
	}
	out := make([]*machine.Machine, 0, len(items))
	for _, m := range items {
		out = append(out, m)
	}
	return out, nil
}

// JSONFileTemplates is a template.Repository backed by a single JSON file.
type JSONFileTemplates struct{ store *jsonFileStore[*template.Template] }

func NewJSONFileTemplates(path string) *JSONFileTemplates {
	return &JSONFileTemplates{store: newJSONFileStore[*template.Template](path)}
}

func (r *JSONFileTemplates) Save(_ context.Context, t *template.Template) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	items, err := r.store.load()
	if err != nil {
		return err
	}
	items[t.TemplateID] = t
	return r.store.flush(items)
}

func (r *JSONFileTemplates) FindByID(_ context.Context, id string) (*template.Template, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	items, err := r.store.load()
	if err != nil {
		return nil, err
	}
	t, ok := items[id]
	if !ok {
		return nil, domainerrors.New(domainerrors.NotFound, "template "+id+" not found", nil)
	}
	return t, nil
}

func (r *JSONFileTemplates) List(_ context.Context) ([]*template.Template, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	items, err := r.store.load()
	if err != nil {
		return nil, err
	}
	out := make([]*template.Template, 0, len(items))
	for _, t := range items {
		out = append(out, t)
	}
	return out, nil
}
