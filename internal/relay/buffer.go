package relay

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dwizi/region-relay/internal/catalog"
	"github.com/dwizi/region-relay/internal/grammar"
)

// Short non-classifying lines are treated as chatter instead of relay content.
const noiseMaxRunes = 20

type State int

const (
	StateIdle State = iota
	StateAccumulating
)

func (s State) String() string {
	if s == StateAccumulating {
		return "accumulating"
	}
	return "idle"
}

type OutcomeKind int

const (
	OutcomeSaved OutcomeKind = iota
	OutcomeRemembered
	OutcomeIgnored
)

// Outcome describes what a ChatBuffer did with one message. Count is the
// number of saved messages for OutcomeSaved and the buffer size for
// OutcomeRemembered.
type Outcome struct {
	Kind      OutcomeKind
	Count     int
	Regions   []string
	Tags      []string
	MessageID int64
}

type BufferOption func(*ChatBuffer)

func WithBufferClock(now func() time.Time) BufferOption {
	return func(b *ChatBuffer) {
		if now != nil {
			b.now = now
		}
	}
}

func WithIDGenerator(newID func() string) BufferOption {
	return func(b *ChatBuffer) {
		if newID != nil {
			b.newID = newID
		}
	}
}

// ChatBuffer holds forwarded messages of one chat until a classifying line
// arrives. It is not safe for concurrent use; callers serialize per chat.
type ChatBuffer struct {
	chatID  int64
	catalog *catalog.Catalog
	writer  BatchWriter
	now     func() time.Time
	newID   func() string
	pending []PendingMessage
}

func NewChatBuffer(chatID int64, cat *catalog.Catalog, writer BatchWriter, opts ...BufferOption) *ChatBuffer {
	buffer := &ChatBuffer{
		chatID:  chatID,
		catalog: cat,
		writer:  writer,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(buffer)
		}
	}
	return buffer
}

func (b *ChatBuffer) State() State {
	if len(b.pending) == 0 {
		return StateIdle
	}
	return StateAccumulating
}

func (b *ChatBuffer) Len() int {
	return len(b.pending)
}

// Handle advances the buffer with one inbound message. Empty text stands for
// media without a caption.
func (b *ChatBuffer) Handle(ctx context.Context, messageID int64, text string) (Outcome, error) {
	line := grammar.ParseFinalize(text)

	var regions []string
	if line.Regions != "" {
		resolution := b.catalog.AliasIndex().Resolve(line.Regions)
		if resolution.Kind == catalog.Resolved && len(resolution.Regions) > 0 {
			regions = resolution.Regions
		}
	}

	if regions != nil {
		tags := []string{}
		if line.Tags != "" {
			resolution := b.catalog.TagValidator().Resolve(line.Tags)
			if !resolution.OK() {
				return Outcome{}, &BadTagError{Token: resolution.BadToken, Allowed: b.catalog.Tags()}
			}
			tags = resolution.Tags
		}
		return b.finalize(ctx, regions, tags)
	}

	if length := utf8.RuneCountInString(text); length > 0 && length < noiseMaxRunes {
		resolution := b.catalog.AliasIndex().Resolve(text)
		if resolution.Kind == catalog.Unresolved {
			return Outcome{}, &BadRegionError{Token: resolution.Token, Candidates: resolution.Candidates}
		}
		return Outcome{Kind: OutcomeIgnored, MessageID: messageID}, nil
	}

	b.pending = append(b.pending, PendingMessage{ChatID: b.chatID, MessageID: messageID})
	return Outcome{Kind: OutcomeRemembered, Count: len(b.pending), MessageID: messageID}, nil
}

func (b *ChatBuffer) finalize(ctx context.Context, regions, tags []string) (Outcome, error) {
	saved := Outcome{Kind: OutcomeSaved, Count: len(b.pending), Regions: regions, Tags: tags}
	if len(b.pending) == 0 {
		return saved, nil
	}

	stampedAt := b.now()
	batch := make([]StoredMessage, 0, len(b.pending))
	for _, pending := range b.pending {
		batch = append(batch, StoredMessage{
			ID:        b.newID(),
			Timestamp: stampedAt,
			ChatID:    pending.ChatID,
			MessageID: pending.MessageID,
			Regions:   append([]string(nil), regions...),
			Tags:      append([]string(nil), tags...),
		})
	}
	// A failed batch leaves the buffer intact so the classifying line can be resent.
	if err := b.writer.InsertBatch(ctx, batch); err != nil {
		return Outcome{}, &StoreError{Op: "insert batch", Err: err}
	}
	b.pending = nil
	return saved, nil
}

// Reset drops every pending message, used when the chat leaves relay mode.
func (b *ChatBuffer) Reset() {
	b.pending = nil
}
