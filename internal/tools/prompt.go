// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"fmt"
	"strings"
)

// Prompt renders the tool-usage instruction block that is injected into the
// system prompt.
func (r *Registry) Prompt() string {
	var sb strings.Builder
	sb.WriteString("You have access to these tools:\n\n")

	for _, tool := range r.tools {
		fmt.Fprintf(&sb, "Tool: %s\n", tool.Name)
		fmt.Fprintf(&sb, "Description: %s\n", tool.Description)
		sb.WriteString("Parameters:\n")
		for _, p := range tool.Parameters {
			req := "optional"
			if p.Required {
				req = "required"
			}
			fmt.Fprintf(&sb, "  - %s (%s): %s [%s]\n", p.Name, p.Type, p.Description, req)
		}
		sb.WriteByte('\n')
	}

	sb.WriteString(`To use a tool, output: <tool_call>{"tool":"tool_name","parameters":{...}}</tool_call>` + "\n")
	sb.WriteString("You can call multiple tools in sequence.\n\n")
	return sb.String()
}
