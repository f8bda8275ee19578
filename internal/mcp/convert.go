// Package mcp exposes the task store as MCP tools.
package mcp

import (
	"sort"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// paramSpec describes one tool argument.
type paramSpec struct {
	Type        string
	Description string
	Required    bool
	Enum        []string
	Minimum     *int
	Maximum     *int
}

// toolSpec describes a tool before it is converted to its MCP form.
type toolSpec struct {
	Name        string
	Description string
	Parameters  map[string]paramSpec
}

// toMCPTool converts a toolSpec to an mcp.Tool with JSON Schema.
func toMCPTool(spec toolSpec) *mcpsdk.Tool {
	props := make(map[string]any, len(spec.Parameters))
	var required []string

	for name, p := range spec.Parameters {
		prop := map[string]any{
			"type":        p.Type,
			"description": p.Description,
		}
		if len(p.Enum) > 0 {
			prop["enum"] = p.Enum
		}
		if p.Minimum != nil {
			prop["minimum"] = *p.Minimum
		}
		if p.Maximum != nil {
			prop["maximum"] = *p.Maximum
		}
		props[name] = prop

		if p.Required {
			required = append(required, name)
		}
	}

	// Sort required for deterministic output
	sort.Strings(required)

	inputSchema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		inputSchema["required"] = required
	}

	return &mcpsdk.Tool{
		Name:        spec.Name,
		Description: spec.Description,
		InputSchema: inputSchema,
	}
}

func intPtr(v int) *int { return &v }
