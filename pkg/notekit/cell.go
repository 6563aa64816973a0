package notekit

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

type CellType string

const (
	CellCode     CellType = "code"
	CellMarkdown CellType = "markdown"
	CellRaw      CellType = "raw"
)

// Cell is an nbformat v4 cell.
type Cell struct {
	ID          string
	Type        CellType
	Source      string
	Metadata    map[string]any
	Attachments map[string]any

	// Outputs and ExecutionCount only exist on code cells.
	Outputs        []map[string]any
	ExecutionCount *int
}

func (c Cell) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"cell_type": c.Type,
		"source":    c.Source,
		"metadata":  c.Metadata,
	}
	if c.Metadata == nil {
		out["metadata"] = map[string]any{}
	}
	if c.ID != "" {
		out["id"] = c.ID
	}

	if c.Type == CellCode {
		outputs := c.Outputs
		if outputs == nil {
			outputs = []map[string]any{}
		}
		out["outputs"] = outputs
		out["execution_count"] = c.ExecutionCount
	} else if c.Attachments != nil {
		out["attachments"] = c.Attachments
	}
	return json.Marshal(out)
}

func (c *Cell) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID             string           `json:"id"`
		Type           CellType         `json:"cell_type"`
		Source         json.RawMessage  `json:"source"`
		Metadata       map[string]any   `json:"metadata"`
		Attachments    map[string]any   `json:"attachments"`
		Outputs        []map[string]any `json:"outputs"`
		ExecutionCount *int             `json:"execution_count"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	source, err := multiline(raw.Source)
	if err != nil {
		return err
	}
	*c = Cell{
		ID:             raw.ID,
		Type:           raw.Type,
		Source:         source,
		Metadata:       raw.Metadata,
		Attachments:    raw.Attachments,
		Outputs:        raw.Outputs,
		ExecutionCount: raw.ExecutionCount,
	}
	return nil
}

// multiline decodes an nbformat multiline string: either a string or a
// list of lines to concatenate.
func multiline(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err != nil {
		return "", fmt.Errorf("source is neither a string nor a list of strings: %w", err)
	}
	return strings.Join(lines, ""), nil
}

const cellSchemaURL = "https://ipywire.raskyld.dev/schemas/nbformat-v4-cell.json"

const cellSchemaSource = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["cell_type", "metadata", "source"],
	"properties": {
		"id": {
			"type": "string",
			"pattern": "^[a-zA-Z0-9_-]+$",
			"minLength": 1,
			"maxLength": 64
		},
		"cell_type": {"enum": ["code", "markdown", "raw"]},
		"metadata": {"type": "object"},
		"source": {"$ref": "#/$defs/multiline_string"},
		"attachments": {
			"type": "object",
			"additionalProperties": {"type": "object"}
		},
		"outputs": {
			"type": "array",
			"items": {"$ref": "#/$defs/output"}
		},
		"execution_count": {
			"type": ["integer", "null"],
			"minimum": 0
		}
	},
	"additionalProperties": false,
	"allOf": [
		{
			"if": {"properties": {"cell_type": {"const": "code"}}},
			"then": {
				"required": ["outputs", "execution_count"],
				"properties": {"attachments": false}
			},
			"else": {
				"properties": {"outputs": false, "execution_count": false}
			}
		}
	],
	"$defs": {
		"multiline_string": {
			"oneOf": [
				{"type": "string"},
				{"type": "array", "items": {"type": "string"}}
			]
		},
		"output": {
			"type": "object",
			"required": ["output_type"],
			"properties": {
				"output_type": {"enum": ["execute_result", "display_data", "stream", "error"]}
			}
		}
	}
}`

var cellSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(cellSchemaURL, strings.NewReader(cellSchemaSource)); err != nil {
		return nil, err
	}
	return c.Compile(cellSchemaURL)
})

// ValidateCell checks cell against the nbformat v4 cell schema.
func ValidateCell(cell Cell) error {
	schema, err := cellSchema()
	if err != nil {
		panic("notekit: cell schema does not compile: " + err.Error())
	}

	data, err := json.Marshal(cell)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCell, err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCell, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCell, err)
	}
	return nil
}
