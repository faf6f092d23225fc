package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dwizi/region-relay/internal/heartbeat"
	"github.com/dwizi/region-relay/internal/store"
)

type adminDirectory interface {
	ListUsers(ctx context.Context) ([]store.User, error)
}

type adminSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// heartbeatNotifier tells every admin in a private chat when a component
// degrades or recovers.
type heartbeatNotifier struct {
	users   adminDirectory
	sender  adminSender
	enabled bool
	logger  *slog.Logger
}

func newHeartbeatNotifier(users adminDirectory, sender adminSender, enabled bool, logger *slog.Logger) *heartbeatNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &heartbeatNotifier{users: users, sender: sender, enabled: enabled, logger: logger}
}

func (n *heartbeatNotifier) HandleTransition(transition heartbeat.Transition) {
	if n == nil || !n.enabled || n.users == nil || n.sender == nil {
		return
	}
	eventType := heartbeatTransitionType(transition)
	if eventType == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	users, err := n.users.ListUsers(ctx)
	if err != nil {
		n.logger.Error("heartbeat list admins failed", "error", err)
		return
	}
	message := buildHeartbeatTransitionMessage(eventType, transition)
	for _, user := range users {
		if user.Group != store.GroupAdmin {
			continue
		}
		if err := n.sender.SendMessage(ctx, user.ID, message); err != nil {
			n.logger.Error("heartbeat notify failed", "user_id", user.ID, "error", err)
		}
	}
}

func isDegraded(state heartbeat.State) bool {
	return state == heartbeat.StateDegraded || state == heartbeat.StateStale
}

func heartbeatTransitionType(transition heartbeat.Transition) string {
	switch {
	case !isDegraded(transition.From) && isDegraded(transition.To):
		return "degraded"
	case isDegraded(transition.From) && transition.To == heartbeat.StateHealthy:
		return "recovered"
	default:
		return ""
	}
}

func buildHeartbeatTransitionMessage(eventType string, transition heartbeat.Transition) string {
	var builder strings.Builder
	if eventType == "recovered" {
		fmt.Fprintf(&builder, "Component %s recovered.", transition.Component)
		return builder.String()
	}
	fmt.Fprintf(&builder, "Component %s is %s.", transition.Component, transition.To)
	if transition.Message != "" {
		fmt.Fprintf(&builder, "\n%s", transition.Message)
	}
	if transition.Error != "" {
		fmt.Fprintf(&builder, "\nError: %s", transition.Error)
	}
	return builder.String()
}
