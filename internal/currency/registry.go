package currency

import (
	"fmt"
	"sync"
)

// Registry is a thread-safe registry of known currencies and their wire aliases.
type Registry struct {
	byCode  map[Code]*Currency
	byAlias map[string]*Currency
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byCode:  make(map[Code]*Currency),
		byAlias: make(map[string]*Currency),
	}
}

// Register adds c along with the tokens that should resolve to it.
// Panics on duplicate codes or aliases.
func (r *Registry) Register(c *Currency, aliases ...string) {
	if c == nil {
		panic("currency: cannot register nil currency")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byCode[c.code]; exists {
		panic(fmt.Sprintf("currency: %s already registered", c.code))
	}
	r.byCode[c.code] = c

	for _, a := range append([]string{string(c.code), c.symbol}, aliases...) {
		key := normalizeToken(a)
		if key == "" {
			continue
		}
		if prev, exists := r.byAlias[key]; exists && prev != c {
			panic(fmt.Sprintf("currency: alias %q already bound to %s", a, prev.code))
		}
		r.byAlias[key] = c
	}
}

// Get retrieves a currency by code.
func (r *Registry) Get(code Code) (*Currency, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byCode[code]
	return c, ok
}

// Resolve maps a wire token ("¥", "元", "cny", "$") to a currency.
func (r *Registry) Resolve(token string) (*Currency, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byAlias[normalizeToken(token)]
	return c, ok
}

// Len returns the number of registered currencies.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byCode)
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the registry pre-populated with the currencies workers report in.
func Default() *Registry {
	defaultOnce.Do(func() {
		r := NewRegistry()
		r.Register(New(CNY, "¥", "Chinese Yuan", 2), "元", "RMB")
		r.Register(New(USD, "$", "US Dollar", 2))
		defaultRegistry = r
	})
	return defaultRegistry
}

// Normalize resolves token against the default registry, returning "" when unknown.
func Normalize(token string) Code {
	if c, ok := Default().Resolve(token); ok {
		return c.Code()
	}
	return ""
}
