// Package strategy provides the static strategy registry: a compile-time
// mapping from strategy name to constructor, populated by explicit Register
// calls from each strategy package's init.
package strategy

import (
	"fmt"
	"sort"
	"sync"

	"candlebot/internal/domain"
	"candlebot/internal/ports"
)

// Deps carries everything a strategy needs at construction time.
type Deps struct {
	Chart           *domain.Chart
	Exchange        ports.ExchangeAdapter
	Mode            domain.Mode
	Budget          float64
	StopLossPercent float64
	Logger          ports.Logger
}

// Constructor builds a strategy from its dependencies and free-form
// name=value arguments.
type Constructor func(deps Deps, args map[string]string) (ports.Strategy, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Constructor)
)

// Register adds a strategy constructor under a unique name. It panics on a
// duplicate, which surfaces wiring mistakes at process start.
func Register(name string, c Constructor) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("strategy %q registered twice", name))
	}
	registry[name] = c
}

// New looks a strategy up by name and constructs it.
func New(name string, deps Deps, args map[string]string) (ports.Strategy, error) {
	mu.RLock()
	c, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown strategy %q (have %v)", ports.ErrConfiguration, name, Names())
	}
	return c(deps, args)
}

// Names lists the registered strategies, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
