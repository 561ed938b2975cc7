// README: Presence service: driver heartbeats and the stale-presence reaper.
package location

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fooddash/internal/modules/driver"
	"fooddash/internal/types"
)

var ErrInvalidPosition = errors.New("invalid position")

type PresenceStore interface {
	Record(ctx context.Context, hb Heartbeat) error
	Touch(ctx context.Context, id types.ID, at time.Time) error
	LastSeen(ctx context.Context, ids []types.ID) (map[types.ID]time.Time, error)
	Evict(ctx context.Context, ids []types.ID) error
	ClearReaped(ctx context.Context, id types.ID) (bool, error)
}

// Drivers is the driver-side view the reaper needs.
type Drivers interface {
	ListOnlineIDs(ctx context.Context) ([]types.ID, error)
	MarkOffline(ctx context.Context, ids []types.ID) (int64, error)
	GoOnline(ctx context.Context, id types.ID) (*driver.Driver, error)
	AddNotificationToken(ctx context.Context, id types.ID, token string) error
}

type Service struct {
	presence PresenceStore
	drivers  Drivers
	cfg      ReaperConfig
	log      *slog.Logger
	now      func() time.Time
	tracer   trace.Tracer
}

func NewService(presence PresenceStore, drivers Drivers, cfg ReaperConfig, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		presence: presence,
		drivers:  drivers,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
		tracer:   otel.Tracer("location"),
	}
}

type Update struct {
	DriverID          types.ID
	Position          types.Point
	NotificationToken string
}

// Heartbeat records a driver position. A driver the reaper took offline is put back
// online, unless something now blocks them. A token sent along is registered for dispatch.
func (s *Service) Heartbeat(ctx context.Context, u Update) error {
	if u.DriverID == "" || !validPoint(u.Position) {
		return ErrInvalidPosition
	}
	if err := s.presence.Record(ctx, Heartbeat{DriverID: u.DriverID, Position: u.Position, At: s.now()}); err != nil {
		return fmt.Errorf("recording heartbeat for %s: %w", u.DriverID, err)
	}
	s.revive(ctx, u.DriverID)
	if u.NotificationToken != "" {
		if err := s.drivers.AddNotificationToken(ctx, u.DriverID, u.NotificationToken); err != nil {
			s.log.Warn("registering notification token failed", "driver_id", u.DriverID, "error", err)
		}
	}
	return nil
}

func (s *Service) revive(ctx context.Context, id types.ID) {
	reaped, err := s.presence.ClearReaped(ctx, id)
	if err != nil {
		s.log.Warn("reading reaped flag failed", "driver_id", id, "error", err)
		return
	}
	if !reaped {
		return
	}
	if _, err := s.drivers.GoOnline(ctx, id); err != nil {
		s.log.Info("reaped driver stays offline", "driver_id", id, "error", err)
		return
	}
	s.log.Info("reaped driver back online", "driver_id", id)
}

// Leave is called when a driver goes offline on purpose so later heartbeats do not
// bring them back.
func (s *Service) Leave(ctx context.Context, id types.ID) error {
	if _, err := s.presence.ClearReaped(ctx, id); err != nil {
		return fmt.Errorf("clearing reaped flag for %s: %w", id, err)
	}
	return nil
}

// Seen marks a driver as alive without a position, e.g. when going online.
func (s *Service) Seen(ctx context.Context, id types.ID) error {
	return s.presence.Touch(ctx, id, s.now())
}

// RunReaper marks silent drivers offline every Interval until ctx is done.
func (s *Service) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ReapOnce(ctx); err != nil {
				s.log.Error("presence reaper failed", "error", err)
			}
		}
	}
}

// ReapOnce flips every online driver whose last heartbeat is older than Threshold (or
// missing) offline in a single batch. It returns how many drivers were changed.
func (s *Service) ReapOnce(ctx context.Context) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "Service.ReapOnce")
	defer span.End()

	online, err := s.drivers.ListOnlineIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing online drivers: %w", err)
	}
	if len(online) == 0 {
		return 0, nil
	}
	seen, err := s.presence.LastSeen(ctx, online)
	if err != nil {
		return 0, fmt.Errorf("reading last-seen instants: %w", err)
	}

	cutoff := s.now().Add(-s.cfg.Threshold)
	var stale []types.ID
	for _, id := range online {
		at, ok := seen[id]
		if !ok || at.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	span.SetAttributes(attribute.Int("online", len(online)), attribute.Int("stale", len(stale)))
	if len(stale) == 0 {
		return 0, nil
	}

	n, err := s.drivers.MarkOffline(ctx, stale)
	if err != nil {
		return 0, fmt.Errorf("marking %d drivers offline: %w", len(stale), err)
	}
	if err := s.presence.Evict(ctx, stale); err != nil {
		s.log.Warn("clearing presence of reaped drivers failed", "error", err)
	}
	s.log.Info("stale drivers marked offline", "count", n, "threshold", s.cfg.Threshold)
	return n, nil
}

func validPoint(p types.Point) bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180 && !(p.Lat == 0 && p.Lng == 0)
}
