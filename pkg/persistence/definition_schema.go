package persistence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dashcrm/flowsaga/pkg/models"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Definition encodings understood by DecodeDefinition.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

var definitionSchema = map[string]any{
	"$schema":  "http://json-schema.org/draft-07/schema#",
	"type":     "object",
	"required": []any{"id", "nodes"},
	"properties": map[string]any{
		"id":     map[string]any{"type": "string", "minLength": 1},
		"name":   map[string]any{"type": "string"},
		"active": map[string]any{"type": "boolean"},
		"nodes": map[string]any{
			"type":                 "object",
			"minProperties":        1,
			"additionalProperties": map[string]any{"$ref": "#/definitions/node"},
		},
	},
	"definitions": map[string]any{
		"node": map[string]any{
			"type":     "object",
			"required": []any{"action"},
			"properties": map[string]any{
				"action":     map[string]any{"type": "string", "minLength": 1},
				"parameters": map[string]any{"type": "object"},
				"next":       map[string]any{"type": "string"},
				"condition":  map[string]any{"type": "string"},
				"true":       map[string]any{"type": "string"},
				"false":      map[string]any{"type": "string"},
			},
		},
	},
}

// FormatFromPath picks the definition encoding from a file extension.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// DecodeDefinition parses a JSON or YAML workflow definition and validates it.
func DecodeDefinition(data []byte, format string) (*models.WorkflowDefinition, error) {
	var definition models.WorkflowDefinition

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &definition); err != nil {
			return nil, fmt.Errorf("failed to decode yaml definition: %w", err)
		}
	default:
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.UseNumber()

		if err := decoder.Decode(&definition); err != nil {
			return nil, fmt.Errorf("failed to decode json definition: %w", err)
		}
	}

	if err := ValidateDefinition(&definition); err != nil {
		return nil, err
	}

	return &definition, nil
}

// ValidateDefinition checks a definition against the workflow definition JSON schema.
func ValidateDefinition(definition *models.WorkflowDefinition) error {
	schemaLoader := gojsonschema.NewGoLoader(definitionSchema)
	dataLoader := gojsonschema.NewGoLoader(definition)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("failed to validate definition: %w", err)
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			problems = append(problems, resultErr.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidDefinition, strings.Join(problems, "; "))
	}

	return nil
}

// LintDefinition reports structural problems that only surface at run time: a missing
// start node and routing targets that name no node.
func LintDefinition(definition *models.WorkflowDefinition) []string {
	var warnings []string

	if _, ok := definition.Node(models.StartNode); !ok {
		warnings = append(warnings, "definition has no start node")
	}

	names := make([]string, 0, len(definition.Nodes))
	for name := range definition.Nodes {
		names = append(names, name)
	}

	slices.Sort(names)

	for _, name := range names {
		node := definition.Nodes[name]

		targets := []string{node.NextNode()}
		if node.HasCondition() {
			targets = []string{node.Branch(true), node.Branch(false)}
		}

		for _, target := range targets {
			if target == models.EndNode {
				continue
			}

			if _, ok := definition.Node(target); !ok {
				warnings = append(warnings, fmt.Sprintf("node %q routes to unknown node %q", name, target))
			}
		}
	}

	return warnings
}
