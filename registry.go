package armorch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

type compiledDefinition struct {
	decode   func(raw json.RawMessage) (any, error)
	deps     func(opt any) ([]ID, error)
	build    func(ctx context.Context, r Resolver, opt any) (any, error)
	deleteFn func(ctx context.Context, out any) error
	postRun  func(ctx context.Context, opt any, out any) error
}

// Registry stores the resource definitions of a deployment by kind.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]compiledDefinition
}

func NewRegistry() *Registry {
	return &Registry{
		defs: make(map[string]compiledDefinition),
	}
}

// Register registers one resource kind with generics.
func Register[Opt any, Out any](r *Registry, kind string, def Definition[Opt, Out]) error {
	if r == nil {
		return fmt.Errorf("register resource definition: registry is nil")
	}
	if kind == "" {
		return fmt.Errorf("register resource definition: kind is empty")
	}
	if def.Build == nil {
		return fmt.Errorf("register resource definition: build func is nil for %s", kind)
	}

	decodeFn := def.Decode
	if decodeFn == nil {
		decodeFn = defaultDecode[Opt]
	}
	depsFn := def.Deps
	if depsFn == nil {
		depsFn = func(Opt) ([]ID, error) { return nil, nil }
	}

	compiled := compiledDefinition{
		decode: func(raw json.RawMessage) (any, error) {
			return decodeFn(raw)
		},
		deps: func(opt any) ([]ID, error) {
			typed, ok := opt.(Opt)
			if !ok {
				return nil, fmt.Errorf("deps option type mismatch: want=%T got=%T", *new(Opt), opt)
			}
			return depsFn(typed)
		},
		build: func(ctx context.Context, resolver Resolver, opt any) (any, error) {
			typed, ok := opt.(Opt)
			if !ok {
				return nil, fmt.Errorf("build option type mismatch: want=%T got=%T", *new(Opt), opt)
			}
			return def.Build(ctx, resolver, typed)
		},
	}
	if def.Delete != nil {
		compiled.deleteFn = func(ctx context.Context, out any) error {
			typed, ok := out.(Out)
			if !ok {
				return fmt.Errorf("delete output type mismatch: want=%T got=%T", *new(Out), out)
			}
			return def.Delete(ctx, typed)
		}
	}

	if def.PostRun != nil {
		compiled.postRun = func(ctx context.Context, opt any, out any) error {
			typedOpt, ok := opt.(Opt)
			if !ok {
				return fmt.Errorf("post-run option type mismatch: want=%T got=%T", *new(Opt), opt)
			}
			typed, ok := out.(Out)
			if !ok {
				return fmt.Errorf("post-run output type mismatch: want=%T got=%T", *new(Out), out)
			}
			return def.PostRun(ctx, typedOpt, typed)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[kind]; exists {
		return fmt.Errorf("register resource definition: duplicate definition for %s", kind)
	}
	r.defs[kind] = compiled
	return nil
}

// MustRegister panics on registration error; intended for bootstrap code paths.
func MustRegister[Opt any, Out any](r *Registry, kind string, def Definition[Opt, Out]) {
	if err := Register(r, kind, def); err != nil {
		panic(err)
	}
}

// Kinds returns the registered kinds, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.defs))
	for k := range r.defs {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func (r *Registry) get(kind string) (compiledDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[kind]
	return def, ok
}

func defaultDecode[Opt any](raw json.RawMessage) (Opt, error) {
	var opt Opt
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return opt, nil
	}
	if err := json.Unmarshal(raw, &opt); err != nil {
		return opt, err
	}
	return opt, nil
}
