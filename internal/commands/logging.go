package commands

import (
	"strings"

	"github.com/goliatone/go-lifecycle/internal/logging"
	"github.com/goliatone/go-lifecycle/pkg/interfaces"
)

// CommandLogger returns the logger for a command group, named
// lifecycle.commands.<group>. A blank group maps to "handle".
func CommandLogger(provider interfaces.LoggerProvider, group string) interfaces.Logger {
	group = strings.TrimSpace(group)
	if group == "" {
		group = "handle"
	}
	return logging.WithFields(logging.ModuleLogger(provider, "lifecycle.commands."+group), map[string]any{
		"component":     "command",
		"command_group": group,
	})
}
