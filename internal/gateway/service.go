package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dwizi/region-relay/internal/catalog"
	"github.com/dwizi/region-relay/internal/dialogue"
	"github.com/dwizi/region-relay/internal/grammar"
	"github.com/dwizi/region-relay/internal/relay"
	"github.com/dwizi/region-relay/internal/store"
)

type Store interface {
	relay.BatchWriter
	relay.Store
	UserGroup(ctx context.Context, userID int64) (store.UserGroup, error)
	UpsertUser(ctx context.Context, user store.User) error
	DeleteUser(ctx context.Context, userID int64) error
	ListUsers(ctx context.Context) ([]store.User, error)
	AddChat(ctx context.Context, chatID int64) error
	DeleteChat(ctx context.Context, chatID int64) error
	ListChats(ctx context.Context) ([]int64, error)
	MigrateChat(ctx context.Context, fromID, toID int64) error
	DeleteMessage(ctx context.Context, id string) error
	PurgeBefore(ctx context.Context, before time.Time) (int64, error)
	Stats(ctx context.Context, now time.Time, location *time.Location) (store.ArchiveStats, error)
	GrantRegions(ctx context.Context, userID int64, regions []string) error
	RevokeRegions(ctx context.Context, userID int64, regions []string) (int64, error)
	ListAccess(ctx context.Context, userID int64) ([]string, error)
}

// Sender delivers bot output. Implementations own rate limiting and
// retry-after handling.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	ReplyTo(ctx context.Context, chatID, messageID int64, text string) error
	ForwardMessage(ctx context.Context, toChatID, fromChatID, messageID int64) error
}

// Message is one inbound chat update as seen by the relay.
type Message struct {
	ChatID            int64
	MessageID         int64
	FromUserID        int64
	Private           bool
	Text              string
	MigrateToChatID   int64
	MigrateFromChatID int64
}

type session struct {
	variant dialogue.Variant
	buffer  *relay.ChatBuffer
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithDefaultOffset sets the UTC offset used by /listdb and /statdb when the
// admin does not pass one.
func WithDefaultOffset(offset string) Option {
	return func(s *Service) {
		if strings.TrimSpace(offset) != "" {
			s.defaultOffset = strings.TrimSpace(offset)
		}
	}
}

// WithTrailingRegion moves one region to the end of every region listing.
func WithTrailingRegion(code string) Option {
	return func(s *Service) {
		s.trailingRegion = strings.TrimSpace(code)
	}
}

func WithBufferOptions(opts ...relay.BufferOption) Option {
	return func(s *Service) {
		s.bufferOptions = append(s.bufferOptions, opts...)
	}
}

type Service struct {
	catalog        *catalog.Catalog
	store          Store
	engine         *relay.Engine
	sender         Sender
	logger         *slog.Logger
	now            func() time.Time
	defaultOffset  string
	trailingRegion string
	bufferOptions  []relay.BufferOption

	sessionsMu sync.Mutex
	sessions   map[int64]*session

	chatsMu sync.RWMutex
	chats   map[int64]struct{}
}

func New(cat *catalog.Catalog, sqlStore Store, engine *relay.Engine, sender Sender, logger *slog.Logger, opts ...Option) *Service {
	service := &Service{
		catalog:       cat,
		store:         sqlStore,
		engine:        engine,
		sender:        sender,
		logger:        logger.With("component", "gateway"),
		now:           func() time.Time { return time.Now().UTC() },
		defaultOffset: "+03:00",
		sessions:      map[int64]*session{},
		chats:         map[int64]struct{}{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}
	return service
}

// LoadChats primes the relay chat set from the store.
func (s *Service) LoadChats(ctx context.Context) error {
	chats, err := s.store.ListChats(ctx)
	if err != nil {
		return fmt.Errorf("load chats: %w", err)
	}
	s.chatsMu.Lock()
	defer s.chatsMu.Unlock()
	s.chats = make(map[int64]struct{}, len(chats))
	for _, chatID := range chats {
		s.chats[chatID] = struct{}{}
	}
	s.logger.Info("relay chats loaded", "count", len(chats))
	return nil
}

// AdminIDs lists the users whose private chats get the full command menu.
func (s *Service) AdminIDs(ctx context.Context) ([]int64, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	ids := []int64{}
	for _, user := range users {
		if user.Group == store.GroupAdmin {
			ids = append(ids, user.ID)
		}
	}
	return ids, nil
}

func (s *Service) isKnownChat(chatID int64) bool {
	s.chatsMu.RLock()
	defer s.chatsMu.RUnlock()
	_, ok := s.chats[chatID]
	return ok
}

func (s *Service) rememberChat(chatID int64) {
	s.chatsMu.Lock()
	defer s.chatsMu.Unlock()
	s.chats[chatID] = struct{}{}
}

func (s *Service) forgetChat(chatID int64) {
	s.chatsMu.Lock()
	defer s.chatsMu.Unlock()
	delete(s.chats, chatID)
}

func (s *Service) session(chatID int64) *session {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	current, ok := s.sessions[chatID]
	if !ok {
		current = &session{
			variant: dialogue.Idle,
			buffer:  relay.NewChatBuffer(chatID, s.catalog, s.store, s.bufferOptions...),
		}
		s.sessions[chatID] = current
	}
	return current
}

func (s *Service) dropSession(chatID int64) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	delete(s.sessions, chatID)
}

// Variant reports the dialogue variant a chat is currently in.
func (s *Service) Variant(chatID int64) dialogue.Variant {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	if current, ok := s.sessions[chatID]; ok {
		return current.variant
	}
	return dialogue.Idle
}

// HandleMessage routes one update. Calls for the same chat must not overlap;
// the dispatcher guarantees that by pinning each chat to one lane.
func (s *Service) HandleMessage(ctx context.Context, message Message) error {
	if message.MigrateToChatID != 0 {
		return s.migrate(ctx, message.ChatID, message.MigrateToChatID)
	}
	if message.MigrateFromChatID != 0 {
		return s.migrate(ctx, message.MigrateFromChatID, message.ChatID)
	}

	current := s.session(message.ChatID)
	next := dialogue.Next(message.Private, current.variant, s.isKnownChat(message.ChatID))
	if dialogue.DropsBuffer(current.variant, next) && current.buffer.Len() > 0 {
		s.logger.Info("pending messages dropped", "chat_id", message.ChatID, "count", current.buffer.Len())
		current.buffer.Reset()
	}
	current.variant = next

	switch next {
	case dialogue.Private:
		return s.handlePrivate(ctx, message)
	case dialogue.Group:
		return s.handleGroup(ctx, current.buffer, message)
	default:
		return s.handleIdle(ctx, message)
	}
}

func (s *Service) handleIdle(ctx context.Context, message Message) error {
	if strings.TrimSpace(message.Text) == "" {
		return nil
	}
	return s.sender.SendMessage(ctx, message.ChatID, message.Text)
}

func (s *Service) migrate(ctx context.Context, fromID, toID int64) error {
	if fromID == 0 || toID == 0 || fromID == toID {
		return nil
	}
	if err := s.store.MigrateChat(ctx, fromID, toID); err != nil {
		return fmt.Errorf("migrate chat %d to %d: %w", fromID, toID, err)
	}
	if s.isKnownChat(fromID) {
		s.forgetChat(fromID)
		s.rememberChat(toID)
	}
	s.dropSession(fromID)
	s.logger.Info("chat migrated", "from_chat_id", fromID, "to_chat_id", toID)
	return nil
}

func (s *Service) offsetLocation(raw string) (*time.Location, string, error) {
	label := strings.TrimSpace(raw)
	if label == "" {
		label = s.defaultOffset
	}
	location, err := grammar.ParseOffset(label)
	if err != nil {
		return nil, "", err
	}
	return location, label, nil
}
