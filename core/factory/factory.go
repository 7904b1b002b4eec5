package factory

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/mitchellh/mapstructure"
)

// ModuleConfig selects a registered backend by type and carries its raw
// settings, as read from the configuration file.
type ModuleConfig struct {
	Type string         `json:"type"`
	Conf map[string]any `json:"conf"`
}

// Factory constructs an implementation of T from raw settings.
type Factory[T any] func(map[string]any) (T, error)

// Registry maps backend type names to factories.
type Registry[T any] struct {
	kind      string
	mu        sync.RWMutex
	factories map[string]Factory[T]
}

// NewRegistry returns an empty registry. kind names the registered
// modules in error messages, e.g. "metrics sink".
func NewRegistry[T any](kind string) *Registry[T] {
	return &Registry[T]{kind: kind, factories: make(map[string]Factory[T])}
}

// Register adds a factory for the given type name.
func (r *Registry[T]) Register(name string, f Factory[T]) error {
	if f == nil {
		return fmt.Errorf("%s %q: nil factory", r.kind, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("%s %q already registered", r.kind, name)
	}
	r.factories[name] = f
	return nil
}

// MustRegister is Register for package init functions.
func (r *Registry[T]) MustRegister(name string, f Factory[T]) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Names lists the registered type names in order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Create instantiates one module.
func (r *Registry[T]) Create(cfg ModuleConfig) (T, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Type]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("unknown %s type %q (known: %s)", r.kind, cfg.Type, strings.Join(r.Names(), ", "))
	}
	v, err := f(cfg.Conf)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%s %s: %w", r.kind, cfg.Type, err)
	}
	return v, nil
}

// Build instantiates every configured module. No configuration returns
// fallback, a single module is returned as is, and several are passed to
// combine.
func (r *Registry[T]) Build(cfgs []ModuleConfig, fallback func() T, combine func([]T) T) (T, error) {
	switch len(cfgs) {
	case 0:
		return fallback(), nil
	case 1:
		return r.Create(cfgs[0])
	}
	mods := make([]T, 0, len(cfgs))
	for _, c := range cfgs {
		m, err := r.Create(c)
		if err != nil {
			var zero T
			return zero, err
		}
		mods = append(mods, m)
	}
	return combine(mods), nil
}

// Decode fills out from raw settings using json tags. Unknown keys are
// rejected and scalar strings are converted, so environment overrides
// decode like file values.
func Decode(data map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	return dec.Decode(data)
}
