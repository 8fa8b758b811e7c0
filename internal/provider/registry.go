package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/evanofslack/ddns-sync/internal/config"
	"github.com/evanofslack/ddns-sync/internal/metrics"
)

// Factory builds a provider for one configured account.
type Factory func(account config.Account, metrics *metrics.Metrics) (Provider, error)

var (
	mu        sync.Mutex
	factories = make(map[string]Factory)
)

// Register is called by provider packages in their init() to self-register.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("provider: %q already registered", name))
	}
	factories[name] = f
}

// New looks up the account's provider in the registry and creates it.
func New(account config.Account, metrics *metrics.Metrics) (Provider, error) {
	mu.Lock()
	f, ok := factories[account.Provider]
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unsupported DNS provider %q (registered: %v)", account.Provider, Registered())
	}
	return f(account, metrics)
}

// Registered lists the registered provider names in sorted order.
func Registered() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
