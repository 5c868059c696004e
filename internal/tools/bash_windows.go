// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

//go:build windows

package tools

import "os/exec"

// configureProcessGroup is a no-op on Windows; CommandContext kills the
// shell process itself.
func configureProcessGroup(cmd *exec.Cmd) {}
