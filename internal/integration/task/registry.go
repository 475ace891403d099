package task

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Provider supplies tasks for a tool.
type Provider interface {
	// ProvideTasks returns every task the provider currently knows about.
	ProvideTasks(ctx context.Context) ([]*Task, error)

	// ResolveTask completes a task definition authored outside the provider.
	// Providers that do not support resolution return nil, nil.
	ResolveTask(ctx context.Context, t *Task) (*Task, error)
}

// ProviderError records a provider failure during Registry.Tasks.
type ProviderError struct {
	Tool string
	ID   string
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider %s: %v", e.Tool, e.ID, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

type entry struct {
	id       string
	tool     string
	seq      uint64
	provider Provider
}

// Registry manages task provider registrations.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*entry
	nextSeq   uint64
}

// NewRegistry creates an empty task registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]*entry),
	}
}

// Registration is the handle returned by Register.
type Registration interface {
	// ID returns the unique registration ID.
	ID() string
	// Dispose removes the provider from the registry. Safe to call repeatedly.
	Dispose()
}

type handle struct {
	registry *Registry
	id       string
	once     sync.Once
}

func (h *handle) ID() string {
	return h.id
}

func (h *handle) Dispose() {
	h.once.Do(func() {
		h.registry.unregister(h.id)
	})
}

// Register makes a provider visible under the given tool name.
func (r *Registry) Register(tool string, provider Provider) Registration {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New().String()
	r.providers[id] = &entry{
		id:       id,
		tool:     tool,
		seq:      r.nextSeq,
		provider: provider,
	}
	r.nextSeq++

	return &handle{registry: r, id: id}
}

func (r *Registry) unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.providers, id)
}

// Len returns the number of active registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// Providers returns the number of providers registered for tool.
func (r *Registry) Providers(tool string) int {
	return len(r.snapshot(tool))
}

// Tools returns the sorted set of tool names with at least one provider.
func (r *Registry) Tools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	names := make([]string, 0, len(r.providers))
	for _, reg := range r.providers {
		if !seen[reg.tool] {
			seen[reg.tool] = true
			names = append(names, reg.tool)
		}
	}
	sort.Strings(names)
	return names
}

// snapshot returns registrations in registration order, optionally filtered by tool.
func (r *Registry) snapshot(tool string) []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	regs := make([]*entry, 0, len(r.providers))
	for _, reg := range r.providers {
		if tool == "" || reg.tool == tool {
			regs = append(regs, reg)
		}
	}
	sort.Slice(regs, func(i, j int) bool {
		return regs[i].seq < regs[j].seq
	})
	return regs
}

// Tasks returns tasks from every registered provider in registration order.
// Tasks from healthy providers are returned even when another provider
// fails; the failures are joined into the returned error.
func (r *Registry) Tasks(ctx context.Context) ([]*Task, error) {
	return r.collect(ctx, "")
}

// TasksFor returns tasks from the providers registered for a tool.
func (r *Registry) TasksFor(ctx context.Context, tool string) ([]*Task, error) {
	return r.collect(ctx, tool)
}

func (r *Registry) collect(ctx context.Context, tool string) ([]*Task, error) {
	var (
		tasks []*Task
		errs  []error
	)
	for _, reg := range r.snapshot(tool) {
		provided, err := reg.provider.ProvideTasks(ctx)
		if err != nil {
			errs = append(errs, &ProviderError{Tool: reg.tool, ID: reg.id, Err: err})
			continue
		}
		tasks = append(tasks, provided...)
	}
	if tasks == nil {
		tasks = []*Task{}
	}
	return tasks, errors.Join(errs...)
}

// Resolve asks the providers registered for the task's source to resolve it.
// Returns nil, nil when no provider resolves the task.
func (r *Registry) Resolve(ctx context.Context, t *Task) (*Task, error) {
	if t == nil {
		return nil, nil
	}
	for _, reg := range r.snapshot(t.Source) {
		resolved, err := reg.provider.ResolveTask(ctx, t)
		if err != nil {
			return nil, err
		}
		if resolved != nil {
			return resolved, nil
		}
	}
	return nil, nil
}
