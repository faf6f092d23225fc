package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dwizi/region-relay/internal/metrics"
)

// call posts one Bot API method. A 429 with retry_after is retried after the
// requested pause, at most maxRetries times.
func (c *Connector) call(ctx context.Context, method string, payload any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		err := c.post(ctx, method, body, result)
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.RetryAfter <= 0 || attempt >= c.maxRetries {
			if err != nil {
				metrics.RecordTelegramCall(method, "error")
			} else {
				metrics.RecordTelegramCall(method, "ok")
			}
			return err
		}
		metrics.RecordTelegramCall(method, "retry")
		pause := time.Duration(apiErr.RetryAfter) * c.retryUnit
		c.logger.Warn("telegram rate limited", "method", method, "retry_after", apiErr.RetryAfter, "attempt", attempt+1)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pause):
		}
	}
}

func (c *Connector) post(ctx context.Context, method string, body []byte, result any) error {
	endpoint := fmt.Sprintf("%s/bot%s/%s", c.apiBase, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", method, err)
	}
	var response apiResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		return fmt.Errorf("decode %s: status=%d: %w", method, res.StatusCode, err)
	}
	if !response.OK {
		apiErr := &APIError{Method: method, Code: response.ErrorCode, Description: response.Description}
		if response.Parameters != nil {
			apiErr.RetryAfter = response.Parameters.RetryAfter
		}
		return apiErr
	}
	if result != nil && len(response.Result) > 0 {
		if err := json.Unmarshal(response.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

func (c *Connector) SendMessage(ctx context.Context, chatID int64, text string) error {
	return c.call(ctx, "sendMessage", map[string]any{
		"chat_id": chatID,
		"text":    text,
	}, nil)
}

func (c *Connector) ReplyTo(ctx context.Context, chatID, messageID int64, text string) error {
	return c.call(ctx, "sendMessage", map[string]any{
		"chat_id":             chatID,
		"text":                text,
		"reply_to_message_id": messageID,
	}, nil)
}

func (c *Connector) ForwardMessage(ctx context.Context, toChatID, fromChatID, messageID int64) error {
	return c.call(ctx, "forwardMessage", map[string]any{
		"chat_id":      toChatID,
		"from_chat_id": fromChatID,
		"message_id":   messageID,
	}, nil)
}

func (c *Connector) fetchBotUsername(ctx context.Context) (string, error) {
	var me telegramUser
	if err := c.call(ctx, "getMe", map[string]any{}, &me); err != nil {
		return "", err
	}
	return me.Username, nil
}
