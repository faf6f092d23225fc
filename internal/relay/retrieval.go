package relay

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dwizi/region-relay/internal/catalog"
	"github.com/dwizi/region-relay/internal/grammar"
)

// ExplicitWindow is a caller supplied `[From, To]` range, both ends inclusive.
type ExplicitWindow struct {
	From time.Time
	To   time.Time
}

type Query struct {
	UserID  int64
	Regions string
	Tags    string
	Window  *ExplicitWindow
}

type RegionMessages struct {
	Region   string
	Window   Window
	Messages []StoredMessage
}

type Result struct {
	Groups []RegionMessages
	Tags   []string
}

func (r Result) Total() int {
	total := 0
	for _, group := range r.Groups {
		total += len(group.Messages)
	}
	return total
}

type EngineOption func(*Engine)

func WithTagPriority(priority TagPriority) EngineOption {
	return func(e *Engine) {
		e.priority = priority
	}
}

// WithLocation sets the zone whose midnight starts a never-served window.
func WithLocation(location *time.Location) EngineOption {
	return func(e *Engine) {
		if location != nil {
			e.location = location
		}
	}
}

func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

type Engine struct {
	catalog  *catalog.Catalog
	store    Store
	priority TagPriority
	location *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

func NewEngine(cat *catalog.Catalog, store Store, logger *slog.Logger, opts ...EngineOption) *Engine {
	engine := &Engine{
		catalog:  cat,
		store:    store,
		location: time.UTC,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}
	if engine.priority.Empty() {
		engine.priority = NewTagPriority(cat.Tags()...)
	}
	return engine
}

// Retrieve serves every allowed region independently. Each region's
// watermark is advanced to now once its query succeeds, so a failure in a
// later region leaves earlier advances in place.
func (e *Engine) Retrieve(ctx context.Context, query Query) (Result, error) {
	if strings.TrimSpace(query.Regions) == "" {
		return Result{}, ErrNoRegions
	}

	var regions []string
	resolution := e.catalog.AliasIndex().Resolve(query.Regions)
	switch resolution.Kind {
	case catalog.Unresolved:
		return Result{}, &BadRegionError{Token: resolution.Token, Candidates: resolution.Candidates}
	case catalog.AllCountry:
		regions = e.catalog.Codes()
	default:
		regions = resolution.Regions
	}

	tags := []string{}
	if strings.TrimSpace(query.Tags) != "" {
		tagResolution := e.catalog.TagValidator().Resolve(query.Tags)
		if !tagResolution.OK() {
			return Result{}, &BadTagError{Token: tagResolution.BadToken, Allowed: e.catalog.Tags()}
		}
		tags = tagResolution.Tags
	}

	allowed, err := e.store.AllowedRegions(ctx, query.UserID)
	if err != nil {
		return Result{}, &StoreError{Op: "load allowed regions", Err: err}
	}
	permitted := make([]string, 0, len(regions))
	seen := map[string]struct{}{}
	for _, region := range regions {
		if _, dup := seen[region]; dup {
			continue
		}
		seen[region] = struct{}{}
		if _, ok := allowed[region]; ok {
			permitted = append(permitted, region)
		}
	}

	now := e.now()
	startOfDay := grammar.StartOfDay(now, e.location)
	span := Window{From: startOfDay, To: now}
	result := Result{Tags: tags}
	total := 0
	for index, region := range permitted {
		window, err := e.windowFor(ctx, query, region, now, startOfDay)
		if err != nil {
			return Result{}, err
		}
		if index == 0 || window.From.Before(span.From) {
			span.From = window.From
		}
		if window.To.After(span.To) {
			span.To = window.To
		}

		messages, err := e.store.QueryMessages(ctx, MessageQuery{Region: region, Tags: tags, Window: window})
		if err != nil {
			return Result{}, &StoreError{Op: "query messages", Region: region, Err: err}
		}
		if err := e.store.SetWatermark(ctx, query.UserID, region, now); err != nil {
			return Result{}, &StoreError{Op: "set watermark", Region: region, Err: err}
		}
		e.logger.Debug("region served",
			"user_id", query.UserID,
			"region", region,
			"from", window.From,
			"to", window.To,
			"count", len(messages),
		)
		if len(messages) == 0 {
			continue
		}
		e.sortByPriority(messages)
		result.Groups = append(result.Groups, RegionMessages{Region: region, Window: window, Messages: messages})
		total += len(messages)
	}

	if total == 0 {
		return Result{}, &NoMessagesError{Regions: permitted, Window: span, Tags: tags}
	}
	return result, nil
}

func (e *Engine) windowFor(ctx context.Context, query Query, region string, now, startOfDay time.Time) (Window, error) {
	if query.Window != nil {
		return Window{From: query.Window.From, To: query.Window.To}, nil
	}
	servedAt, ok, err := e.store.GetWatermark(ctx, query.UserID, region)
	if err != nil {
		return Window{}, &StoreError{Op: "load watermark", Region: region, Err: err}
	}
	if !ok {
		return Window{From: startOfDay, To: now}, nil
	}
	return Window{From: servedAt, To: now, ExclusiveFrom: true}, nil
}

func (e *Engine) sortByPriority(messages []StoredMessage) {
	sort.SliceStable(messages, func(left, right int) bool {
		leftRank := e.priority.Rank(messages[left].Tags)
		rightRank := e.priority.Rank(messages[right].Tags)
		if leftRank != rightRank {
			return leftRank < rightRank
		}
		return messages[left].Timestamp.Before(messages[right].Timestamp)
	})
}
