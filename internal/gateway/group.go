package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/dwizi/region-relay/internal/metrics"
	"github.com/dwizi/region-relay/internal/relay"
)

func (s *Service) handleGroup(ctx context.Context, buffer *relay.ChatBuffer, message Message) error {
	outcome, err := buffer.Handle(ctx, message.MessageID, message.Text)
	if err != nil {
		var storeErr *relay.StoreError
		switch {
		case errors.As(err, new(*relay.BadRegionError)):
			metrics.RecordGroupOutcome("bad_region", 0)
		case errors.As(err, new(*relay.BadTagError)):
			metrics.RecordGroupOutcome("bad_tag", 0)
		case errors.As(err, &storeErr):
			metrics.RecordGroupOutcome("store_error", 0)
			s.logger.Error("finalize batch failed", "chat_id", message.ChatID, "pending", buffer.Len(), "error", err)
		default:
			s.logger.Error("group message failed", "chat_id", message.ChatID, "message_id", message.MessageID, "error", err)
		}
		return s.sender.SendMessage(ctx, message.ChatID, renderError(err))
	}

	switch outcome.Kind {
	case relay.OutcomeSaved:
		metrics.RecordGroupOutcome("saved", outcome.Count)
		s.logger.Info("batch saved", "chat_id", message.ChatID, "count", outcome.Count, "regions", outcome.Regions, "tags", outcome.Tags)
		return s.sender.SendMessage(ctx, message.ChatID, renderSaved(outcome))
	case relay.OutcomeRemembered:
		metrics.RecordGroupOutcome("remembered", 0)
		return s.sender.ReplyTo(ctx, message.ChatID, message.MessageID, fmt.Sprintf("Accepted %d", outcome.Count))
	default:
		metrics.RecordGroupOutcome("ignored", 0)
		return s.sender.ReplyTo(ctx, message.ChatID, message.MessageID, "Ignored")
	}
}
