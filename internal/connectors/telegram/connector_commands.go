package telegram

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dwizi/region-relay/internal/gateway"
)

var commandSanitizer = regexp.MustCompile(`[^a-z0-9_]+`)

// AdminDirectory is implemented by handlers that know which users are admins.
type AdminDirectory interface {
	AdminIDs(ctx context.Context) ([]int64, error)
}

// syncCommands registers the public menu for everyone and the full menu in
// each admin's private chat.
func (c *Connector) syncCommands(ctx context.Context) error {
	if err := c.call(ctx, "setMyCommands", map[string]any{"commands": buildBotCommands(false)}, nil); err != nil {
		return err
	}
	directory, ok := c.handler.(AdminDirectory)
	if !ok {
		return nil
	}
	admins, err := directory.AdminIDs(ctx)
	if err != nil {
		return fmt.Errorf("sync admin commands: %w", err)
	}
	full := buildBotCommands(true)
	for _, adminID := range admins {
		payload := map[string]any{
			"commands": full,
			"scope":    map[string]any{"type": "chat", "chat_id": adminID},
		}
		if err := c.call(ctx, "setMyCommands", payload, nil); err != nil {
			return err
		}
	}
	return nil
}

func buildBotCommands(includeAdmin bool) []botCommand {
	commands := make([]botCommand, 0, len(gateway.SlashCommands()))
	for _, command := range gateway.SlashCommands() {
		if command.AdminOnly && !includeAdmin {
			continue
		}
		name := telegramCommandName(command.Name)
		if name == "" {
			continue
		}
		commands = append(commands, botCommand{
			Command:     name,
			Description: telegramCommandDescription(command.Description),
		})
	}
	return commands
}

func telegramCommandName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = commandSanitizer.ReplaceAllString(normalized, "")
	if len(normalized) > 32 {
		normalized = normalized[:32]
	}
	return strings.Trim(normalized, "_")
}

func telegramCommandDescription(description string) string {
	trimmed := strings.TrimSpace(description)
	if trimmed == "" {
		return "Region relay command"
	}
	if len(trimmed) > 256 {
		return strings.TrimSpace(trimmed[:256])
	}
	return trimmed
}
