package retention

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dwizi/region-relay/internal/heartbeat"
	"github.com/dwizi/region-relay/internal/metrics"
)

const (
	component        = "retention"
	idleBeatInterval = 20 * time.Second
)

var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type Store interface {
	PurgeBefore(ctx context.Context, before time.Time) (int64, error)
}

type Service struct {
	store     Store
	schedule  cron.Schedule
	keep      time.Duration
	logger    *slog.Logger
	reporter  heartbeat.Reporter
	now       func() time.Time
	beatEvery time.Duration
}

// ParseSchedule validates a five-field cron expression or descriptor.
func ParseSchedule(expression string) (cron.Schedule, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, fmt.Errorf("retention schedule is required")
	}
	schedule, err := scheduleParser.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse retention schedule: %w", err)
	}
	return schedule, nil
}

// New builds the purge job. A non-positive retention period disables it.
func New(store Store, days int, expression string, logger *slog.Logger) (*Service, error) {
	service := &Service{
		store:     store,
		keep:      time.Duration(days) * 24 * time.Hour,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		beatEvery: idleBeatInterval,
	}
	if days <= 0 {
		return service, nil
	}
	schedule, err := ParseSchedule(expression)
	if err != nil {
		return nil, err
	}
	service.schedule = schedule
	return service, nil
}

func (s *Service) SetHeartbeatReporter(reporter heartbeat.Reporter) {
	s.reporter = reporter
}

func (s *Service) Enabled() bool {
	return s.store != nil && s.schedule != nil && s.keep > 0
}

func (s *Service) Start(ctx context.Context) error {
	if !s.Enabled() {
		if s.reporter != nil {
			s.reporter.Disabled(component, "retention period not set")
		}
		<-ctx.Done()
		return nil
	}
	if s.reporter != nil {
		s.reporter.Beat(component, "waiting for next purge")
	}
	s.logger.Info("retention job started", "keep", s.keep.String())
	ticker := time.NewTicker(s.beatEvery)
	defer ticker.Stop()
	failing := false
	for {
		next := s.schedule.Next(s.now())
		timer := time.NewTimer(time.Until(next))
	wait:
		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				if s.reporter != nil {
					s.reporter.Stopped(component, "stopped")
				}
				s.logger.Info("retention job stopped")
				return nil
			case <-ticker.C:
				// A failed purge stays degraded until the next run succeeds.
				if s.reporter != nil && !failing {
					s.reporter.Beat(component, "waiting for next purge")
				}
			case <-timer.C:
				break wait
			}
		}
		if _, err := s.RunOnce(ctx); err != nil {
			failing = true
			if s.reporter != nil {
				s.reporter.Degrade(component, "purge failed", err)
			}
			s.logger.Error("retention purge failed", "error", err)
			continue
		}
		failing = false
		if s.reporter != nil {
			s.reporter.Beat(component, "purge completed")
		}
	}
}

// RunOnce removes every message older than the retention period.
func (s *Service) RunOnce(ctx context.Context) (int64, error) {
	if s.store == nil {
		return 0, fmt.Errorf("retention store is not configured")
	}
	cutoff := s.now().Add(-s.keep)
	purged, err := s.store.PurgeBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge messages: %w", err)
	}
	metrics.RecordPurge(purged)
	s.logger.Info("retention purge completed", "purged", purged, "cutoff", cutoff.Format(time.RFC3339))
	return purged, nil
}
