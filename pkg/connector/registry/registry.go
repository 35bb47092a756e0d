// Package registry maps connector names to factories.
package registry

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/multisql/pkg/config"
	"github.com/ajitpratap0/multisql/pkg/connector/core"
	"github.com/ajitpratap0/multisql/pkg/errors"
	"github.com/ajitpratap0/multisql/pkg/logger"
)

// Registry manages connector registration and instantiation
type Registry struct {
	sources      map[string]SourceFactory
	destinations map[string]DestinationFactory
	info         map[string]*ConnectorInfo
	mu           sync.RWMutex
	logger       *zap.Logger
}

// SourceFactory creates a source connector for a job.
type SourceFactory func(config *config.JobConfig) (core.Source, error)

// DestinationFactory creates a destination connector for a job.
type DestinationFactory func(config *config.JobConfig) (core.Destination, error)

// ConnectorInfo provides information about a connector
type ConnectorInfo struct {
	Name         string             `json:"name"`
	Type         core.ConnectorType `json:"type"`
	Description  string             `json:"description"`
	Capabilities []string           `json:"capabilities"`
}

var globalRegistry = NewRegistry()

// NewRegistry creates a new connector registry
func NewRegistry() *Registry {
	return &Registry{
		sources:      make(map[string]SourceFactory),
		destinations: make(map[string]DestinationFactory),
		info:         make(map[string]*ConnectorInfo),
		logger:       logger.Get().With(zap.String("component", "connector_registry")),
	}
}

// RegisterSource registers a source connector factory
func (r *Registry) RegisterSource(name string, factory SourceFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sources[name]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "source connector %s already registered", name)
	}

	r.sources[name] = factory
	r.logger.Debug("source connector registered", zap.String("name", name))
	return nil
}

// RegisterDestination registers a destination connector factory
func (r *Registry) RegisterDestination(name string, factory DestinationFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.destinations[name]; exists {
		return errors.Newf(errors.ErrorTypeConfig, "destination connector %s already registered", name)
	}

	r.destinations[name] = factory
	r.logger.Debug("destination connector registered", zap.String("name", name))
	return nil
}

// RegisterInfo stores connector metadata, replacing any previous entry.
func (r *Registry) RegisterInfo(info *ConnectorInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.info[string(info.Type)+"/"+info.Name] = info
}

// CreateSource creates a source connector instance
func (r *Registry) CreateSource(name string, config *config.JobConfig) (core.Source, error) {
	r.mu.RLock()
	factory, exists := r.sources[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrorTypeConfig, "source connector %s not found", name).
			WithDetail("available", r.ListSources())
	}

	source, err := factory(config)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "failed to create source connector %s", name)
	}
	return source, nil
}

// CreateDestination creates a destination connector instance
func (r *Registry) CreateDestination(name string, config *config.JobConfig) (core.Destination, error) {
	r.mu.RLock()
	factory, exists := r.destinations[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrorTypeConfig, "destination connector %s not found", name).
			WithDetail("available", r.ListDestinations())
	}

	destination, err := factory(config)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeConfig, "failed to create destination connector %s", name)
	}
	return destination, nil
}

// ListSources returns the registered source names in sorted order.
func (r *Registry) ListSources() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.sources)
}

// ListDestinations returns the registered destination names in sorted order.
func (r *Registry) ListDestinations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.destinations)
}

// Info returns the metadata registered for a connector.
func (r *Registry) Info(connectorType core.ConnectorType, name string) (*ConnectorInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.info[string(connectorType)+"/"+name]
	return info, ok
}

// HasSource checks if a source connector is registered
func (r *Registry) HasSource(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.sources[name]
	return exists
}

// HasDestination checks if a destination connector is registered
func (r *Registry) HasDestination(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.destinations[name]
	return exists
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Global registry functions

// RegisterSource registers a source connector in the global registry
func RegisterSource(name string, factory SourceFactory) error {
	return globalRegistry.RegisterSource(name, factory)
}

// RegisterDestination registers a destination connector in the global registry
func RegisterDestination(name string, factory DestinationFactory) error {
	return globalRegistry.RegisterDestination(name, factory)
}

// RegisterConnectorInfo stores connector metadata in the global registry
func RegisterConnectorInfo(info *ConnectorInfo) {
	globalRegistry.RegisterInfo(info)
}

// CreateSource creates a source connector from the global registry
func CreateSource(name string, config *config.JobConfig) (core.Source, error) {
	return globalRegistry.CreateSource(name, config)
}

// CreateDestination creates a destination connector from the global registry
func CreateDestination(name string, config *config.JobConfig) (core.Destination, error) {
	return globalRegistry.CreateDestination(name, config)
}

// ListSources returns registered sources from the global registry
func ListSources() []string {
	return globalRegistry.ListSources()
}

// ListDestinations returns registered destinations from the global registry
func ListDestinations() []string {
	return globalRegistry.ListDestinations()
}

// GetConnectorInfo returns metadata from the global registry
func GetConnectorInfo(connectorType core.ConnectorType, name string) (*ConnectorInfo, bool) {
	return globalRegistry.Info(connectorType, name)
}

// GetRegistry returns the global registry instance.
func GetRegistry() *Registry {
	return globalRegistry
}
