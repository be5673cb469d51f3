// Package secrets provides a thread-safe credential vault for per-task
// environment injection.
package secrets

import (
	"fmt"
	"sync"
)

// Loader retrieves credentials from a source (env vars, file, remote vault).
type Loader func() (map[string]string, error)

// Vault holds credential values in memory and supports atomic reloading.
// The dispatcher injects a snapshot of the vault into every external
// execution at a fixed environment point.
type Vault struct {
	mu     sync.RWMutex
	values map[string]string
	loader Loader
}

// NewVault creates a Vault, calling the loader once to populate initial values.
func NewVault(loader Loader) (*Vault, error) {
	vals, err := loader()
	if err != nil {
		return nil, fmt.Errorf("initial credential load: %w", err)
	}
	return &Vault{
		values: vals,
		loader: loader,
	}, nil
}

// Get returns the credential for key, or an empty string if not found.
func (v *Vault) Get(key string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[key]
}

// Environ returns the vault contents as KEY=VALUE pairs suitable for
// appending to a process or exec environment.
func (v *Vault) Environ() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	env := make([]string, 0, len(v.values))
	for k, val := range v.values {
		env = append(env, k+"="+val)
	}
	return env
}

// Reload calls the loader and swaps in the new values atomically.
// If the loader returns an error, existing values are preserved.
func (v *Vault) Reload() error {
	newVals, err := v.loader()
	if err != nil {
		return fmt.Errorf("reload credentials: %w", err)
	}
	v.mu.Lock()
	v.values = newVals
	v.mu.Unlock()
	return nil
}
