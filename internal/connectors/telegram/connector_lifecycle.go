package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dwizi/region-relay/internal/dispatch"
	"github.com/dwizi/region-relay/internal/gateway"
	"github.com/dwizi/region-relay/internal/metrics"
)

func (c *Connector) Start(ctx context.Context) error {
	if c.reporter != nil {
		c.reporter.Starting(component, "starting")
	}
	if c.token == "" {
		if c.reporter != nil {
			c.reporter.Disabled(component, "token missing")
		}
		c.logger.Info("connector disabled, token missing")
		<-ctx.Done()
		return nil
	}
	if c.handler == nil {
		if c.reporter != nil {
			c.reporter.Disabled(component, "handler missing")
		}
		c.logger.Info("connector disabled, handler missing")
		<-ctx.Done()
		return nil
	}

	c.logger.Info("connector started", "api_base", c.apiBase)
	if username, err := c.fetchBotUsername(ctx); err == nil {
		c.botUsername = username
		c.logger.Info("telegram bot identity loaded", "username", c.botUsername)
	} else {
		c.logger.Warn("telegram bot username lookup failed", "error", err)
	}
	if c.commandSync {
		if err := c.syncCommands(ctx); err != nil {
			c.logger.Warn("telegram command sync failed", "error", err)
		} else {
			c.logger.Info("telegram commands synced")
		}
	}
	if c.reporter != nil {
		c.reporter.Beat(component, "polling updates")
	}

	for {
		if ctx.Err() != nil {
			return c.stopped()
		}
		if err := c.pollOnce(ctx); err != nil && ctx.Err() == nil {
			if c.reporter != nil {
				c.reporter.Degrade(component, "poll failed", err)
			}
			c.logger.Error("poll failed", "error", err)
			select {
			case <-ctx.Done():
				return c.stopped()
			case <-time.After(1500 * time.Millisecond):
			}
		} else if c.reporter != nil {
			c.reporter.Beat(component, "poll cycle ok")
		}
	}
}

func (c *Connector) stopped() error {
	if c.reporter != nil {
		c.reporter.Stopped(component, "stopped")
	}
	c.logger.Info("connector stopped")
	return nil
}

func (c *Connector) pollOnce(ctx context.Context) error {
	url := fmt.Sprintf("%s/bot%s/getUpdates?timeout=%d&offset=%d&allowed_updates=%s",
		c.apiBase, c.token, c.pollSeconds, c.offset, `["message"]`)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordTelegramCall("getUpdates", "error")
		return err
	}
	defer res.Body.Close()

	var payload struct {
		OK          bool             `json:"ok"`
		Description string           `json:"description"`
		Result      []telegramUpdate `json:"result"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		metrics.RecordTelegramCall("getUpdates", "error")
		return fmt.Errorf("decode getUpdates: %w", err)
	}
	if !payload.OK {
		metrics.RecordTelegramCall("getUpdates", "error")
		return fmt.Errorf("telegram getUpdates failed: %s", payload.Description)
	}
	metrics.RecordTelegramCall("getUpdates", "ok")

	for _, update := range payload.Result {
		if update.UpdateID >= c.offset {
			c.offset = update.UpdateID + 1
		}
		if update.Message == nil {
			continue
		}
		c.route(ctx, update.UpdateID, toGatewayMessage(*update.Message))
	}
	return nil
}

// toGatewayMessage keeps only message text. Media captions are not text, so
// forwarded media reaches the buffer with an empty body.
func toGatewayMessage(message telegramMessage) gateway.Message {
	converted := gateway.Message{
		ChatID:            message.Chat.ID,
		MessageID:         message.MessageID,
		Private:           message.Chat.Type == "private",
		Text:              message.Text,
		MigrateToChatID:   message.MigrateToChatID,
		MigrateFromChatID: message.MigrateFromChatID,
	}
	if message.From != nil {
		converted.FromUserID = message.From.ID
	}
	return converted
}

func (c *Connector) route(ctx context.Context, updateID int64, message gateway.Message) {
	if c.dispatcher == nil {
		if err := c.handler.HandleMessage(ctx, message); err != nil {
			c.logger.Error("handle message failed", "error", err, "update_id", updateID, "chat_id", message.ChatID)
		}
		return
	}
	_, err := c.dispatcher.Enqueue(dispatch.Job{
		ChatID: message.ChatID,
		Kind:   "telegram_message",
		Run: func(jobCtx context.Context) error {
			return c.handler.HandleMessage(jobCtx, message)
		},
	})
	if errors.Is(err, dispatch.ErrQueueFull) {
		metrics.RecordDispatchRejected()
		if c.reporter != nil {
			c.reporter.Degrade(component, "dispatch lane full", err)
		}
		c.logger.Error("message dropped, lane full", "update_id", updateID, "chat_id", message.ChatID, "message_id", message.MessageID)
		return
	}
	if err != nil {
		c.logger.Error("enqueue message failed", "error", err, "update_id", updateID, "chat_id", message.ChatID)
	}
}
