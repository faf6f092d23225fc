package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/dwizi/region-relay/internal/grammar"
	"github.com/dwizi/region-relay/internal/metrics"
	"github.com/dwizi/region-relay/internal/relay"
	"github.com/dwizi/region-relay/internal/store"
)

func (s *Service) handlePrivate(ctx context.Context, message Message) error {
	if command, ok := grammar.ParseCommand(message.Text); ok {
		return s.handleCommand(ctx, message, command)
	}

	group, err := s.store.UserGroup(ctx, message.FromUserID)
	if err != nil {
		s.logger.Error("lookup user group failed", "user_id", message.FromUserID, "error", err)
		return s.sender.SendMessage(ctx, message.ChatID, renderError(err))
	}
	if group == store.GroupUnregistered {
		return s.handleIdle(ctx, message)
	}
	return s.retrieve(ctx, message)
}

func (s *Service) retrieve(ctx context.Context, message Message) error {
	parsed, err := grammar.ParseQuery(message.Text)
	if err != nil {
		metrics.RecordRetrieval("bad_request", 0)
		return s.sender.SendMessage(ctx, message.ChatID, renderError(err))
	}
	query := relay.Query{
		UserID:  message.FromUserID,
		Regions: parsed.Regions,
		Tags:    parsed.Tags,
	}
	if from, to, ok := parsed.Window(s.now()); ok {
		query.Window = &relay.ExplicitWindow{From: from, To: to}
	}

	result, err := s.engine.Retrieve(ctx, query)
	if err != nil {
		var noMessages *relay.NoMessagesError
		var storeErr *relay.StoreError
		switch {
		case errors.As(err, &noMessages):
			metrics.RecordRetrieval("no_messages", 0)
		case errors.As(err, &storeErr):
			metrics.RecordRetrieval("store_error", 0)
			s.logger.Error("retrieval failed", "user_id", message.FromUserID, "error", err)
		default:
			metrics.RecordRetrieval("bad_request", 0)
		}
		return s.sender.SendMessage(ctx, message.ChatID, renderError(err))
	}

	groups := map[string]relay.RegionMessages{}
	codes := make([]string, 0, len(result.Groups))
	for _, group := range result.Groups {
		groups[group.Region] = group
		codes = append(codes, group.Region)
	}
	for _, code := range s.orderRegions(codes, false) {
		if err := s.sender.SendMessage(ctx, message.ChatID, regionHeader(code)); err != nil {
			return err
		}
		if err := s.forwardAll(ctx, message.ChatID, groups[code].Messages, false); err != nil {
			return err
		}
	}
	metrics.RecordRetrieval("delivered", result.Total())
	s.logger.Info("retrieval delivered", "user_id", message.FromUserID, "regions", len(result.Groups), "messages", result.Total())
	return nil
}

func (s *Service) forwardAll(ctx context.Context, chatID int64, messages []relay.StoredMessage, withID bool) error {
	for _, stored := range messages {
		if withID {
			if err := s.sender.SendMessage(ctx, chatID, stored.ID); err != nil {
				return err
			}
		}
		if err := s.sender.ForwardMessage(ctx, chatID, stored.ChatID, stored.MessageID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) requireAdmin(ctx context.Context, userID int64) error {
	group, err := s.store.UserGroup(ctx, userID)
	if err != nil {
		return err
	}
	if group != store.GroupAdmin {
		return &relay.PrivilegeError{Desired: string(store.GroupAdmin), Current: string(group)}
	}
	return nil
}

func (s *Service) handleCommand(ctx context.Context, message Message, command grammar.Command) error {
	switch command.Name {
	case "start":
		return s.sender.SendMessage(ctx, message.ChatID, startReply)
	case "help":
		return s.sendHelp(ctx, message)
	}

	handler, ok := adminCommands[command.Name]
	if !ok {
		return s.sendHelp(ctx, message)
	}
	if err := s.requireAdmin(ctx, message.FromUserID); err != nil {
		if errors.Is(err, relay.ErrPrivilege) {
			s.logger.Warn("admin command refused", "user_id", message.FromUserID, "command", command.Name)
		}
		return s.sender.SendMessage(ctx, message.ChatID, renderError(err))
	}
	s.logger.Info("admin command", "user_id", message.FromUserID, "command", command.Name, "args", strings.Join(command.Args, " "))
	return handler(s, ctx, message.ChatID, command.Args)
}

func (s *Service) sendHelp(ctx context.Context, message Message) error {
	group, err := s.store.UserGroup(ctx, message.FromUserID)
	if err != nil {
		return s.sender.SendMessage(ctx, message.ChatID, renderError(err))
	}
	return s.sender.SendMessage(ctx, message.ChatID, s.helpText(group))
}
