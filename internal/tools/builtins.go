// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config controls the built-in tools and the executor.
type Config struct {
	// BackupSuffix is appended to a path to name write_file's backup copy
	BackupSuffix string

	// Shell runs execute_bash commands as `<Shell> -c <command>`
	Shell string

	// MaxOutput caps the bytes of output returned to the model (0 = no cap)
	MaxOutput int
}

// DefaultConfig returns the default tool configuration.
func DefaultConfig() Config {
	return Config{
		BackupSuffix: ".backup",
		Shell:        "sh",
		MaxOutput:    30000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BackupSuffix == "" {
		c.BackupSuffix = d.BackupSuffix
	}
	if c.Shell == "" {
		c.Shell = d.Shell
	}
	return c
}

// =============================================================================
// BUILT-IN TOOLS
// =============================================================================

// Tool names.
const (
	ReadFile      = "read_file"
	WriteFile     = "write_file"
	ExecuteBash   = "execute_bash"
	SearchFiles   = "search_files"
	ListDirectory = "list_directory"
)

// Builtins returns fresh definitions of the five built-in tools, in the
// order they are presented to the model.
func Builtins(cfg Config) []*Tool {
	cfg = cfg.withDefaults()
	return []*Tool{
		{
			Name:        ReadFile,
			Description: "Read contents of a file",
			Parameters: []Parameter{
				{Name: "path", Type: "string", Description: "File path to read", Required: true},
			},
			Executor: &ReadExecutor{},
		},
		{
			Name:        WriteFile,
			Description: "Write content to a file",
			Parameters: []Parameter{
				{Name: "path", Type: "string", Description: "File path to write", Required: true},
				{Name: "content", Type: "string", Description: "Content to write", Required: true},
			},
			Executor: &WriteExecutor{BackupSuffix: cfg.BackupSuffix},
		},
		{
			Name:        ExecuteBash,
			Description: "Execute a bash command",
			Parameters: []Parameter{
				{Name: "command", Type: "string", Description: "Bash command to execute", Required: true},
			},
			Executor: &BashExecutor{Shell: cfg.Shell},
		},
		{
			Name:        SearchFiles,
			Description: "Search for files matching a pattern",
			Parameters: []Parameter{
				{Name: "pattern", Type: "string", Description: "Glob pattern to search", Required: true},
				{Name: "directory", Type: "string", Description: "Directory to search in", Required: false},
			},
			Executor: &SearchExecutor{},
		},
		{
			Name:        ListDirectory,
			Description: "List contents of a directory",
			Parameters: []Parameter{
				{Name: "path", Type: "string", Description: "Directory path", Required: true},
			},
			Executor: &ListExecutor{},
		},
	}
}
