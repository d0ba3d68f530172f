package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/dashcrm/flowsaga/pkg/cmd"
	"github.com/dashcrm/flowsaga/pkg/config"
	"github.com/dashcrm/flowsaga/pkg/eventbus"
	"github.com/dashcrm/flowsaga/pkg/events"
	"github.com/dashcrm/flowsaga/pkg/log"
	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/dashcrm/flowsaga/pkg/persistence"
	"github.com/dashcrm/flowsaga/pkg/saga"
	cli "github.com/urfave/cli/v3"
)

var errDefinitionFileRequired = errors.New("a definition file is required")

func databaseFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "database-url",
		Usage:   "Persistence URL (postgres:// or a directory)",
		Value:   "./data",
		Sources: cli.EnvVars("DATABASE_URL"),
	}
}

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate a workflow definition file and report lint warnings",
		ArgsUsage: "<definition.json|yaml>",
		Action: func(_ context.Context, command *cli.Command) error {
			definition, err := readDefinition(command.Args().First())
			if err != nil {
				return err
			}

			return report(command.Root().Writer, definition)
		},
	}
}

func NewImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Validate a workflow definition file and save it",
		ArgsUsage: "<definition.json|yaml>",
		Flags:     []cli.Flag{databaseFlag()},
		Action: func(ctx context.Context, command *cli.Command) error {
			definition, err := readDefinition(command.Args().First())
			if err != nil {
				return err
			}

			if err := report(command.Root().Writer, definition); err != nil {
				return err
			}

			store, err := cmd.NewPersistence(ctx, log.WithModule("flowsaga"), command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() { _ = store.Close(ctx) }()

			if err := store.SaveDefinition(ctx, definition); err != nil {
				return err
			}

			_, err = fmt.Fprintf(command.Root().Writer, "imported %s\n", definition.ID)

			return err
		},
	}
}

// NewRunCommand runs one execution inside the CLI process, without workers or event bus.
func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run an execution in-process and print its final payload",
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.StringFlag{Name: "variant", Usage: "Interpreter variant (workflow, lead)", Value: string(models.VariantWorkflow)},
			&cli.StringFlag{Name: "workflow-id", Usage: "Workflow definition id"},
			&cli.StringFlag{Name: "lead-id", Usage: "Lead id (lead variant)"},
			&cli.StringFlag{Name: "workflow-type", Usage: "Workflow type (lead variant)"},
			&cli.StringFlag{Name: "payload", Usage: "Initial payload as a JSON object", Value: "{}"},
			&cli.StringFlag{Name: "config", Usage: "Path to the YAML file with action settings", Sources: cli.EnvVars("FLOWSAGA_CONFIG")},
			&cli.StringFlag{Name: "plugins-path", Usage: "Path to the directory containing action plugins", Sources: cli.EnvVars("PLUGINS_PATH")},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			var payload models.Payload
			if err := json.Unmarshal([]byte(command.String("payload")), &payload); err != nil {
				return fmt.Errorf("invalid payload: %w", err)
			}

			cfg, err := config.LoadOrDefault(command.String("config"))
			if err != nil {
				return err
			}

			logger := log.WithModule("flowsaga")

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() { _ = store.Close(ctx) }()

			deps := cmd.ActionDependencies{HTTPClient: &http.Client{}, Leads: store, Settings: cfg.Actions}
			req := saga.StartRequest{
				WorkflowID:     command.String("workflow-id"),
				LeadID:         command.String("lead-id"),
				WorkflowType:   command.String("workflow-type"),
				InitialPayload: payload,
			}

			var result models.Payload

			switch models.Variant(command.String("variant")) {
			case models.VariantLead:
				interpreter := saga.NewLeadSaga(store, store, store, cmd.NewLeadRegistry(logger, deps), logger)
				result, err = interpreter.Start(ctx, req)
			case models.VariantWorkflow:
				actions, regErr := cmd.NewWorkflowRegistry(logger, deps, command.String("plugins-path"))
				if regErr != nil {
					return regErr
				}

				result, err = saga.NewWorkflowSaga(store, store, actions, logger).Start(ctx, req)
			default:
				return fmt.Errorf("unknown variant %q", command.String("variant"))
			}

			if err != nil {
				return err
			}

			return printJSON(command.Root().Writer, result)
		},
	}
}

// NewRequestCommand publishes an execution request for the workers.
func NewRequestCommand() *cli.Command {
	return &cli.Command{
		Name:  "request",
		Usage: "Ask the workers to run an execution",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "event-bus", Usage: "Event bus type (kafka, gochannel)", Value: "kafka", Sources: cli.EnvVars("EVENT_BUS_TYPE")},
			&cli.StringFlag{Name: "kafka-brokers", Usage: "Comma separated Kafka brokers", Value: "localhost:9092", Sources: cli.EnvVars("KAFKA_BROKERS")},
			&cli.StringFlag{Name: "variant", Usage: "Interpreter variant (workflow, lead)", Value: string(models.VariantWorkflow)},
			&cli.StringFlag{Name: "workflow-id", Usage: "Workflow definition id"},
			&cli.StringFlag{Name: "lead-id", Usage: "Lead id (lead variant)"},
			&cli.StringFlag{Name: "workflow-type", Usage: "Workflow type (lead variant)"},
			&cli.StringFlag{Name: "payload", Usage: "Initial payload as a JSON object", Value: "{}"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			var payload models.Payload
			if err := json.Unmarshal([]byte(command.String("payload")), &payload); err != nil {
				return fmt.Errorf("invalid payload: %w", err)
			}

			bus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), "flowsaga-cli", log.WithModule("flowsaga"))
			if err != nil {
				return err
			}

			defer func() { _ = bus.Close() }()

			request := events.ExecutionRequested{
				BaseEvent:    events.NewBaseEvent(events.ExecutionRequestedEvent, command.String("workflow-id")),
				Variant:      models.Variant(command.String("variant")),
				LeadID:       command.String("lead-id"),
				WorkflowType: command.String("workflow-type"),
				Payload:      payload,
			}

			if err := eventbus.RequestExecution(ctx, bus, request); err != nil {
				return err
			}

			_, err = fmt.Fprintf(command.Root().Writer, "requested %s\n", request.ID)

			return err
		},
	}
}

func NewStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "Show the stored state of an execution",
		ArgsUsage: "<execution-id>",
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.StringFlag{Name: "redis-url", Usage: "Redis URL when executions are stored in Redis", Sources: cli.EnvVars("REDIS_URL")},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			id := command.Args().First()
			if id == "" {
				return errors.New("an execution id is required")
			}

			logger := log.WithModule("flowsaga")

			store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() { _ = store.Close(ctx) }()

			executions := persistence.ExecutionStore(store)

			if url := command.String("redis-url"); url != "" {
				client, err := cmd.NewRedisClient(ctx, url)
				if err != nil {
					return err
				}

				executions = cmd.NewExecutionStore(logger, store, client)
				defer func() { _ = executions.Close(ctx) }()
			}

			record, err := executions.GetExecution(ctx, id)
			if err != nil {
				return err
			}

			return printJSON(command.Root().Writer, record)
		},
	}
}

func readDefinition(path string) (*models.WorkflowDefinition, error) {
	if path == "" {
		return nil, errDefinitionFileRequired
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return persistence.DecodeDefinition(data, persistence.FormatFromPath(path))
}

func report(w io.Writer, definition *models.WorkflowDefinition) error {
	for _, warning := range persistence.LintDefinition(definition) {
		if _, err := fmt.Fprintf(w, "warning: %s\n", warning); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "%s: %d nodes, valid\n", definition.ID, len(definition.Nodes))

	return err
}

func printJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(value)
}
