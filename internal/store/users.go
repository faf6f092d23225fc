package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrChatNotFound = errors.New("chat not found")
)

type UserGroup string

const (
	GroupAdmin        UserGroup = "Admin"
	GroupRegistered   UserGroup = "Registered"
	GroupUnregistered UserGroup = "Unregistered"
)

// ParseUserGroup accepts any casing; unknown names fall back to Registered.
func ParseUserGroup(raw string) UserGroup {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "admin":
		return GroupAdmin
	case "unregistered":
		return GroupUnregistered
	default:
		return GroupRegistered
	}
}

type User struct {
	ID    int64     `json:"id"`
	Group UserGroup `json:"group"`
}

// UserGroup reports the stored group, or Unregistered for unknown ids.
func (s *Store) UserGroup(ctx context.Context, userID int64) (UserGroup, error) {
	row := s.db.QueryRowContext(ctx, `SELECT user_group FROM users WHERE id = ?`, userID)
	var group string
	if err := row.Scan(&group); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return GroupUnregistered, nil
		}
		return "", fmt.Errorf("lookup user group: %w", err)
	}
	return UserGroup(group), nil
}

func (s *Store) UpsertUser(ctx context.Context, user User) error {
	if user.ID == 0 {
		return fmt.Errorf("user id is required")
	}
	if user.Group == "" {
		user.Group = GroupRegistered
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO users (id, user_group) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET user_group = excluded.user_group`,
		user.ID,
		string(user.Group),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, userID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows: %w", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_group FROM users ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	users := []User{}
	for rows.Next() {
		var user User
		var group string
		if err := rows.Scan(&user.ID, &group); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		user.Group = UserGroup(group)
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (s *Store) AddChat(ctx context.Context, chatID int64) error {
	if chatID == 0 {
		return fmt.Errorf("chat id is required")
	}
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO chats (id) VALUES (?)`, chatID); err != nil {
		return fmt.Errorf("add chat: %w", err)
	}
	return nil
}

func (s *Store) DeleteChat(ctx context.Context, chatID int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete chat rows: %w", err)
	}
	if affected == 0 {
		return ErrChatNotFound
	}
	return nil
}

func (s *Store) ListChats(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chats ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()
	chats := []int64{}
	for rows.Next() {
		var chatID int64
		if err := rows.Scan(&chatID); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, chatID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}
	return chats, nil
}

// MigrateChat follows a group that was upgraded to a supergroup: the relay
// registration and every archived message move to the new chat id.
func (s *Store) MigrateChat(ctx context.Context, fromID, toID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, fromID)
	if err != nil {
		return fmt.Errorf("migrate chat: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected > 0 {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO chats (id) VALUES (?)`, toID); err != nil {
			return fmt.Errorf("register migrated chat: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE messages SET chat_id = ? WHERE chat_id = ?`, toID, fromID); err != nil {
		return fmt.Errorf("migrate chat messages: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit chat migration: %w", err)
	}
	return nil
}
