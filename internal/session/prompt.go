// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import "strings"

// SystemPrompt opens every turn's prompt.
const SystemPrompt = `You are OCLI, an autonomous AI coding assistant with direct access to tools.

CRITICAL: You MUST use tools. Do NOT describe what you would do - DO IT.

TOOL USAGE RULES:
1. ALWAYS use <tool_call> tags - never just describe actions
2. Use tools IMMEDIATELY when the user asks about files, code or the system
3. Chain multiple tools in one response
4. Read files BEFORE answering questions about them
5. Execute commands BEFORE reporting results

EXAMPLES:
User: "What's in main.go?"
You: <tool_call>{"tool":"read_file","parameters":{"path":"main.go"}}</tool_call>

User: "What files are here?"
You: <tool_call>{"tool":"list_directory","parameters":{"path":"."}}</tool_call>

User: "Build the project"
You: <tool_call>{"tool":"execute_bash","parameters":{"command":"go build ./..."}}</tool_call>

DO NOT ASK PERMISSION - JUST USE TOOLS.`

// BuildPrompt assembles the full prompt for one turn: the system prompt,
// the tool-usage block, the conversation's file summary and the user input.
func BuildPrompt(toolBlock string, conv *Conversation, input string) string {
	var sb strings.Builder
	sb.WriteString(SystemPrompt)
	sb.WriteString("\n\n")
	sb.WriteString(toolBlock)
	if conv != nil {
		sb.WriteString(conv.Summary())
	}
	sb.WriteString("\n\nUser: ")
	sb.WriteString(input)
	return sb.String()
}

// WriteFilePrompt asks the model for the complete content of one file.
func WriteFilePrompt(path, request string) string {
	return SystemPrompt + "\n\nWrite content for file '" + path + "' based on: " + request +
		"\n\nProvide ONLY the file content."
}
