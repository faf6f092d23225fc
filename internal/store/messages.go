package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dwizi/region-relay/internal/relay"
)

var ErrMessageNotFound = errors.New("message not found")

// InsertBatch persists every message of a finalize batch in one transaction.
func (s *Store) InsertBatch(ctx context.Context, messages []relay.StoredMessage) error {
	if len(messages) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, message := range messages {
		if strings.TrimSpace(message.ID) == "" {
			return fmt.Errorf("message id is required")
		}
		if len(message.Regions) == 0 {
			return fmt.Errorf("message %s has no regions", message.ID)
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO messages (id, chat_id, message_id, stamped_at_unix_nano) VALUES (?, ?, ?, ?)`,
			message.ID,
			message.ChatID,
			message.MessageID,
			message.Timestamp.UTC().UnixNano(),
		); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		for position, region := range message.Regions {
			if _, err := tx.ExecContext(
				ctx,
				`INSERT INTO message_regions (message_id, position, region_code) VALUES (?, ?, ?)`,
				message.ID, position, region,
			); err != nil {
				return fmt.Errorf("insert message region: %w", err)
			}
		}
		for position, tag := range message.Tags {
			if _, err := tx.ExecContext(
				ctx,
				`INSERT INTO message_tags (message_id, position, tag) VALUES (?, ?, ?)`,
				message.ID, position, tag,
			); err != nil {
				return fmt.Errorf("insert message tag: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// QueryMessages returns messages in the window ordered by stamp time. An
// empty Region or Tags matches everything.
func (s *Store) QueryMessages(ctx context.Context, query relay.MessageQuery) ([]relay.StoredMessage, error) {
	lowerOp := ">="
	if query.Window.ExclusiveFrom {
		lowerOp = ">"
	}
	clauses := []string{
		"m.stamped_at_unix_nano " + lowerOp + " ?",
		"m.stamped_at_unix_nano <= ?",
	}
	args := []any{query.Window.From.UTC().UnixNano(), query.Window.To.UTC().UnixNano()}
	if region := strings.TrimSpace(query.Region); region != "" {
		clauses = append(clauses, `EXISTS (SELECT 1 FROM message_regions r WHERE r.message_id = m.id AND r.region_code = ?)`)
		args = append(args, region)
	}
	if len(query.Tags) > 0 {
		clauses = append(clauses, `EXISTS (SELECT 1 FROM message_tags t WHERE t.message_id = m.id AND t.tag IN (`+placeholders(len(query.Tags))+`))`)
		for _, tag := range query.Tags {
			args = append(args, tag)
		}
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT m.id, m.chat_id, m.message_id, m.stamped_at_unix_nano
		 FROM messages m
		 WHERE `+strings.Join(clauses, " AND ")+`
		 ORDER BY m.stamped_at_unix_nano ASC, m.rowid ASC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := []relay.StoredMessage{}
	for rows.Next() {
		var message relay.StoredMessage
		var stampedAt int64
		if err := rows.Scan(&message.ID, &message.ChatID, &message.MessageID, &stampedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		message.Timestamp = time.Unix(0, stampedAt).UTC()
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	if err := s.attachLabels(ctx, messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// labelChunkSize keeps each IN list well under SQLite's bound variable limit.
const labelChunkSize = 500

func (s *Store) attachLabels(ctx context.Context, messages []relay.StoredMessage) error {
	if len(messages) == 0 {
		return nil
	}
	index := make(map[string]int, len(messages))
	for position, message := range messages {
		index[message.ID] = position
	}
	for start := 0; start < len(messages); start += labelChunkSize {
		end := min(start+labelChunkSize, len(messages))
		args := make([]any, 0, end-start)
		for _, message := range messages[start:end] {
			args = append(args, message.ID)
		}
		if err := s.attachRegions(ctx, messages, index, args); err != nil {
			return err
		}
		if err := s.attachTags(ctx, messages, index, args); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) attachRegions(ctx context.Context, messages []relay.StoredMessage, index map[string]int, ids []any) error {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT message_id, region_code FROM message_regions
		 WHERE message_id IN (`+placeholders(len(ids))+`)
		 ORDER BY message_id, position`,
		ids...,
	)
	if err != nil {
		return fmt.Errorf("query message regions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var messageID, region string
		if err := rows.Scan(&messageID, &region); err != nil {
			return fmt.Errorf("scan message region: %w", err)
		}
		position := index[messageID]
		messages[position].Regions = append(messages[position].Regions, region)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate message regions: %w", err)
	}
	return nil
}

func (s *Store) attachTags(ctx context.Context, messages []relay.StoredMessage, index map[string]int, ids []any) error {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT message_id, tag FROM message_tags
		 WHERE message_id IN (`+placeholders(len(ids))+`)
		 ORDER BY message_id, position`,
		ids...,
	)
	if err != nil {
		return fmt.Errorf("query message tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var messageID, tag string
		if err := rows.Scan(&messageID, &tag); err != nil {
			return fmt.Errorf("scan message tag: %w", err)
		}
		position := index[messageID]
		messages[position].Tags = append(messages[position].Tags, tag)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate message tags: %w", err)
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (relay.StoredMessage, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, chat_id, message_id, stamped_at_unix_nano FROM messages WHERE id = ?`,
		strings.TrimSpace(id),
	)
	var message relay.StoredMessage
	var stampedAt int64
	if err := row.Scan(&message.ID, &message.ChatID, &message.MessageID, &stampedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return relay.StoredMessage{}, ErrMessageNotFound
		}
		return relay.StoredMessage{}, fmt.Errorf("get message: %w", err)
	}
	message.Timestamp = time.Unix(0, stampedAt).UTC()
	batch := []relay.StoredMessage{message}
	if err := s.attachLabels(ctx, batch); err != nil {
		return relay.StoredMessage{}, err
	}
	return batch[0], nil
}

func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete message rows: %w", err)
	}
	if affected == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// PurgeBefore removes every message stamped strictly before the cutoff.
func (s *Store) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(
		ctx,
		`DELETE FROM messages WHERE stamped_at_unix_nano < ?`,
		before.UTC().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge messages: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge messages rows: %w", err)
	}
	return affected, nil
}

type ArchiveStats struct {
	Today           int64 `json:"today"`
	Yesterday       int64 `json:"yesterday"`
	BeforeYesterday int64 `json:"before_yesterday"`
	Week            int64 `json:"week"`
	Month           int64 `json:"month"`
	Earlier         int64 `json:"earlier"`
	Total           int64 `json:"total"`
}

// Stats buckets the archive by local calendar day. Week and month are the
// seven and thirty days before today and overlap the shorter buckets.
func (s *Store) Stats(ctx context.Context, now time.Time, location *time.Location) (ArchiveStats, error) {
	if location == nil {
		location = time.UTC
	}
	local := now.In(location)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, location)
	daysBack := func(days int) int64 {
		return today.AddDate(0, 0, -days).UTC().UnixNano()
	}
	todayNano := today.UTC().UnixNano()

	row := s.db.QueryRowContext(
		ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN stamped_at_unix_nano >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN stamped_at_unix_nano >= ? AND stamped_at_unix_nano < ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN stamped_at_unix_nano >= ? AND stamped_at_unix_nano < ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN stamped_at_unix_nano >= ? AND stamped_at_unix_nano < ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN stamped_at_unix_nano >= ? AND stamped_at_unix_nano < ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN stamped_at_unix_nano < ? THEN 1 ELSE 0 END), 0),
			COUNT(*)
		 FROM messages`,
		todayNano,
		daysBack(1), todayNano,
		daysBack(2), daysBack(1),
		daysBack(7), todayNano,
		daysBack(30), todayNano,
		daysBack(30),
	)
	var stats ArchiveStats
	if err := row.Scan(
		&stats.Today,
		&stats.Yesterday,
		&stats.BeforeYesterday,
		&stats.Week,
		&stats.Month,
		&stats.Earlier,
		&stats.Total,
	); err != nil {
		return ArchiveStats{}, fmt.Errorf("archive stats: %w", err)
	}
	return stats, nil
}
