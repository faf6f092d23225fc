package relay

import (
	"context"
	"strings"
	"time"
)

type PendingMessage struct {
	ChatID    int64
	MessageID int64
}

type StoredMessage struct {
	ID        string
	Timestamp time.Time
	ChatID    int64
	MessageID int64
	Regions   []string
	Tags      []string
}

// Window bounds a message query. Incremental windows exclude From so that
// consecutive lookups never return the same message twice.
type Window struct {
	From          time.Time
	To            time.Time
	ExclusiveFrom bool
}

func (w Window) Contains(at time.Time) bool {
	if at.After(w.To) {
		return false
	}
	if w.ExclusiveFrom {
		return at.After(w.From)
	}
	return !at.Before(w.From)
}

type MessageQuery struct {
	Region string
	Tags   []string
	Window Window
}

type BatchWriter interface {
	InsertBatch(ctx context.Context, messages []StoredMessage) error
}

type Store interface {
	QueryMessages(ctx context.Context, query MessageQuery) ([]StoredMessage, error)
	GetWatermark(ctx context.Context, userID int64, region string) (time.Time, bool, error)
	SetWatermark(ctx context.Context, userID int64, region string, at time.Time) error
	AllowedRegions(ctx context.Context, userID int64) (map[string]struct{}, error)
}

// TagPriority ranks messages by their first tag. Classes are matched against
// the leading characters of the tag in list order; tagless messages and tags
// outside every class rank last.
type TagPriority struct {
	classes []string
}

func NewTagPriority(classes ...string) TagPriority {
	normalized := make([]string, 0, len(classes))
	for _, class := range classes {
		class = strings.ToUpper(strings.TrimSpace(class))
		if class != "" {
			normalized = append(normalized, class)
		}
	}
	return TagPriority{classes: normalized}
}

func (p TagPriority) Empty() bool {
	return len(p.classes) == 0
}

func (p TagPriority) Rank(tags []string) int {
	if len(tags) == 0 {
		return len(p.classes)
	}
	first := strings.ToUpper(tags[0])
	for index, class := range p.classes {
		if strings.HasPrefix(first, class) {
			return index
		}
	}
	return len(p.classes)
}
