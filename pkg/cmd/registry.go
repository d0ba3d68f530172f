// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"
	"net/http"

	"github.com/dashcrm/flowsaga/pkg/actions/ai"
	"github.com/dashcrm/flowsaga/pkg/actions/email"
	"github.com/dashcrm/flowsaga/pkg/actions/httprequest"
	"github.com/dashcrm/flowsaga/pkg/actions/leadfield"
	logaction "github.com/dashcrm/flowsaga/pkg/actions/log"
	"github.com/dashcrm/flowsaga/pkg/actions/noop"
	"github.com/dashcrm/flowsaga/pkg/actions/task"
	"github.com/dashcrm/flowsaga/pkg/actions/transform"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/outbox"
	"github.com/dashcrm/flowsaga/pkg/persistence"
	"github.com/dashcrm/flowsaga/pkg/registry"
)

// ActionDependencies are the collaborators of the built-in actions. A nil Outbox leaves
// send_email and create_task unregistered.
type ActionDependencies struct {
	HTTPClient *http.Client
	Outbox     outbox.Outbox
	Leads      persistence.LeadRepository
	Settings   map[string]map[string]any
}

func registerNativeActions[C models.Entity](reg *registry.Registry[C], logger *slog.Logger, deps ActionDependencies) {
	reg.RegisterAction(noop.NewActionFactory[C]())
	reg.RegisterAction(logaction.NewActionFactory[C](logger))
	reg.RegisterAction(transform.NewActionFactory[C](logger))
	reg.RegisterAction(httprequest.NewActionFactory[C](deps.HTTPClient, logger))
	reg.RegisterAction(ai.NewActionFactory[C](deps.HTTPClient, logger))

	if deps.Outbox != nil {
		reg.RegisterAction(email.NewActionFactory[C](deps.Outbox, logger))
		reg.RegisterAction(task.NewActionFactory[C](deps.Outbox, logger))
	} else {
		logger.Warn("No outbox configured, send_email and create_task are unavailable")
	}

	for actionID, settings := range deps.Settings {
		reg.Configure(actionID, settings)
	}
}

// NewWorkflowRegistry registers the built-in actions and the action plugins found under
// pluginsPath for the workflow variant.
func NewWorkflowRegistry(logger *slog.Logger, deps ActionDependencies, pluginsPath string) (*registry.Registry[models.WorkflowContext], error) {
	reg := registry.NewRegistry[models.WorkflowContext](logger)

	if pluginsPath != "" {
		if _, err := reg.LoadActionPlugins(pluginsPath); err != nil {
			return nil, err
		}
	}

	registerNativeActions(reg, logger, deps)

	return reg, nil
}

// NewLeadRegistry registers the built-in actions of the lead variant, update_lead_field
// included.
func NewLeadRegistry(logger *slog.Logger, deps ActionDependencies) *registry.Registry[models.LeadContext] {
	reg := registry.NewRegistry[models.LeadContext](logger)

	registerNativeActions(reg, logger, deps)

	if deps.Leads != nil {
		reg.RegisterAction(leadfield.NewActionFactory(deps.Leads, logger))
	}

	return reg
}
