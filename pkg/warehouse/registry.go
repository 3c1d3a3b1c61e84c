package warehouse

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/meridianmed/insight-engine/pkg/config"
)

// Factory creates a warehouse adapter from configuration.
type Factory func(ctx context.Context, cfg *config.WarehouseConfig, logger *zap.Logger) (Warehouse, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
)

// Register makes a dialect adapter available by driver name. Called from
// adapter package init functions.
func Register(driver string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[driver] = factory
}

// Open creates the adapter named by cfg.Driver.
func Open(ctx context.Context, cfg *config.WarehouseConfig, logger *zap.Logger) (Warehouse, error) {
	registryMu.RLock()
	factory, ok := factories[cfg.Driver]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown warehouse driver %q (registered: %v)", cfg.Driver, Drivers())
	}
	return factory(ctx, cfg, logger)
}

// Drivers lists registered driver names, sorted.
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
