// Package repository implements the repository ports of spec.md §6: an
// in-memory adapter for tests and a JSON-file adapter for single-process
// persistence, both satisfying the same domain repository interfaces so a
// later relational backend can be swapped in without touching callers.
// Grounded on the mutex-guarded in-memory store shape used throughout the
// retrieval pack (e.g. giantswarm-muster's oauth.StateStore) — the teacher
// itself has no repository layer of its own (its state lives in the
// Kubernetes API server), so this package is modeled on that sibling
// pattern instead.
package repository

import (
	"context"
	"sync"

	domainerrors "github.com/awslabs/host-factory-controlplane/pkg/errors"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/machine"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/request"
	"github.com/awslabs/host-factory-controlplane/pkg/domain/template"
)

// InMemoryRequests is a mutex-guarded map-backed request.Repository, the
// default in tests and in single-process deployments without
// storage.strategy configured.
type InMemoryRequests struct {
	mu    sync.RWMutex
	byID  map[string]*request.Request
}

func NewInMemoryRequests() *InMemoryRequests {
	return &InMemoryRequests{byID: map[string]*request.Request{}}
}

func (s *InMemoryRequests) Save(_ context.Context, r *request.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[r.ID] = r
	return nil
}

func (s *InMemoryRequests) FindByID(_ context.Context, id string) (*request.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byID[id]
	if !ok {
		return nil, domainerrors.New(domainerrors.NotFound, "request "+id+" not found", nil)
	}
	return r, nil
}

func (s *InMemoryRequests) List(_ context.Context) ([]*request.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*request.Request, 0, len(s.byID))
	for _, r := range s.byID {
		out = append(out, r)
	}
	return out, nil
}

// InMemoryMachines is the machine.Repository counterpart, indexed both by
// id and by owning request id for the return-request grouping step
// (spec.md §4.7's CreateReturnRequestHandler step 3).
type InMemoryMachines struct {
	mu        sync.RWMutex
	byID      map[string]*machine.Machine
	byRequest map[string][]string
}

func NewInMemoryMachines() *InMemoryMachines {
	return &InMemoryMachines{byID: map[string]*machine.Machine{}, byRequest: map[string][]string{}}
}

func (s *InMemoryMachines) Save(_ context.Context, m *machine.Machine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[m.InstanceID]; !exists {
		s.byRequest[m.RequestID] = append(s.byRequest[m.RequestID], m.InstanceID)
	}
	s.byID[m.InstanceID] = m
	return nil
}

func (s *InMemoryMachines) FindByID(_ context.Context, id string) (*machine.Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, domainerrors.New(domainerrors.NotFound, "machine "+id+" not found", nil)
	}
	return m, nil
}

func (s *InMemoryMachines) ListByRequestID(_ context.Context, requestID string) ([]*machine.Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byRequest[requestID]
	out := make([]*machine.Machine, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.byID[id])
	}
	return out, nil
}

func (s *InMemoryMachines) List(_ context.Context) ([]*machine.Machine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*machine.Machine, 0, len(s.byID))
	for _, m := range s.byID {
		out = append(out, m)
	}
	return out, nil
}

// InMemoryTemplates is the template.Repository counterpart, populated by
// the scheduler adapter's template sync path.
type InMemoryTemplates struct {
	mu   sync.RWMutex
	byID map[string]*template.Template
}

func NewInMemoryTemplates() *InMemoryTemplates {
	return &InMemoryTemplates{byID: map[string]*template.Template{}}
}

func (s *InMemoryTemplates) Save(_ context.Context, t *template.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[t.TemplateID] = t
	return nil
}

func (s *InMemoryTemplates) FindByID(_ context.Context, id string) (*template.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, domainerrors.New(domainerrors.NotFound, "template "+id+" not found", nil)
	}
	return t, nil
}

func (s *InMemoryTemplates) List(_ context.Context) ([]*template.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*template.Template, 0, len(s.byID))
	for _, t := range s.byID {
		out = append(out, t)
	}
	return out, nil
}
