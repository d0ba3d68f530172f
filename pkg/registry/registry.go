// Package registry maps action identifiers to executors and compensators.
package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"slices"
	"strings"
	"sync"

	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/protocol"
)

var ErrActionNotRegistered = errors.New("action not registered")

// Registry is populated at startup and read concurrently by running executions.
type Registry[C models.Entity] struct {
	logger          *slog.Logger
	mu              sync.RWMutex
	actionFactories map[string]protocol.ActionFactory[C]
	instances       map[string]protocol.Action[C]
	compensators    map[string]protocol.Compensator[C]
	settings        map[string]map[string]any
}

func NewRegistry[C models.Entity](log *slog.Logger) *Registry[C] {
	return &Registry[C]{
		logger:          log.With("module", "registry"),
		actionFactories: make(map[string]protocol.ActionFactory[C]),
		instances:       make(map[string]protocol.Action[C]),
		compensators:    make(map[string]protocol.Compensator[C]),
		settings:        make(map[string]map[string]any),
	}
}

// Configure sets the settings handed to the factory of actionID when its executor is created.
func (r *Registry[C]) Configure(actionID string, settings map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.settings[actionID] = settings
	delete(r.instances, actionID)
}

func (r *Registry[C]) RegisterAction(actionFactory protocol.ActionFactory[C]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.actionFactories[actionFactory.ID()] = actionFactory
	delete(r.instances, actionFactory.ID())
}

// RegisterCompensator overrides the compensator used for steps run by actionID.
func (r *Registry[C]) RegisterCompensator(actionID string, compensator protocol.Compensator[C]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.compensators[actionID] = compensator
}

// Resolve returns the executor for actionID, creating it on first use.
func (r *Registry[C]) Resolve(actionID string) (protocol.Action[C], error) {
	r.mu.RLock()
	action, ok := r.instances[actionID]
	r.mu.RUnlock()

	if ok {
		return action, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if action, ok := r.instances[actionID]; ok {
		return action, nil
	}

	factory, ok := r.actionFactories[actionID]
	if !ok {
		return nil, fmt.Errorf("action type '%s': %w", actionID, ErrActionNotRegistered)
	}

	action, err := factory.Create(r.settings[actionID])
	if err != nil {
		return nil, fmt.Errorf("failed to create action '%s': %w", actionID, err)
	}

	r.instances[actionID] = action

	return action, nil
}

// Compensator returns the compensator for actionID. Explicit registrations win over actions
// that compensate themselves.
func (r *Registry[C]) Compensator(actionID string) (protocol.Compensator[C], bool) {
	r.mu.RLock()
	compensator, ok := r.compensators[actionID]
	r.mu.RUnlock()

	if ok {
		return compensator, true
	}

	action, err := r.Resolve(actionID)
	if err != nil {
		return nil, false
	}

	compensator, ok = action.(protocol.Compensator[C])

	return compensator, ok
}

// Actions lists the registered action identifiers in sorted order.
func (r *Registry[C]) Actions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.actionFactories))
	for id := range r.actionFactories {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}

// LoadActionPlugins opens every shared object under <pluginsPath>/actions and registers
// the ActionFactory each one exports as "Action".
func (r *Registry[C]) LoadActionPlugins(pluginsPath string) ([]protocol.ActionFactory[C], error) {
	factories, err := loadPlugin[protocol.ActionFactory[C]](r.logger, pluginsPath, "Action")
	if err != nil {
		return nil, err
	}

	for _, factory := range factories {
		r.RegisterAction(factory)
	}

	return factories, nil
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := filepath.Join(pluginsPath, strings.ToLower(symbolName)+"s")

	if _, err := os.Stat(rootPath); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	var pluginPathList []string

	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.IsDir() && strings.HasSuffix(path, ".so") {
			pluginPathList = append(pluginPathList, path)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan plugins in %s: %w", rootPath, err)
	}

	l := logger.With(slog.String("path", rootPath), slog.String("type", symbolName))
	l.Info("Loading plugins", "count", len(pluginPathList))

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(p)
		if err != nil {
			return nil, fmt.Errorf("failed to open plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", p, err)
		}

		castV, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("plugin %s: symbol %s has unexpected type %T", p, symbolName, v)
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
