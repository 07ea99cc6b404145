package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// SyncScheduler drives the sync engine: a periodic tick, a manual trigger
// channel, and a connectivity signal that retries a failed sync as soon as
// the network comes back.
type SyncScheduler struct {
	Engine   *SyncEngine
	Status   *SyncStatus
	Toggles  Toggles
	Interval time.Duration
	Log      zerolog.Logger

	manual chan struct{}
	online chan bool
}

func NewSyncScheduler(engine *SyncEngine, status *SyncStatus, toggles Toggles, interval time.Duration, log zerolog.Logger) *SyncScheduler {
	return &SyncScheduler{
		Engine:   engine,
		Status:   status,
		Toggles:  toggles,
		Interval: interval,
		Log:      log,
		manual:   make(chan struct{}, 1),
		online:   make(chan bool, 1),
	}
}

// Trigger requests a manual push-only sync. Coalesces with a pending trigger.
func (s *SyncScheduler) Trigger() {
	select {
	case s.manual <- struct{}{}:
	default:
	}
}

// SetOnline reports a connectivity change.
func (s *SyncScheduler) SetOnline(online bool) {
	select {
	case s.online <- online:
	default:
	}
}

// Run blocks until ctx is cancelled.
func (s *SyncScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	online := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !online {
				continue
			}
			s.runScheduled(ctx)
		case <-s.manual:
			if !online {
				s.Log.Warn().Msg("manual sync requested while offline")
				continue
			}
			if err := s.Engine.ForceSync(ctx); err != nil {
				s.Log.Error().Err(err).Msg("manual sync failed")
			}
		case up := <-s.online:
			wasOffline := !online
			online = up
			if up && wasOffline {
				// Catch up immediately rather than waiting out the tick.
				s.runScheduled(ctx)
			}
		}
	}
}

func (s *SyncScheduler) runScheduled(ctx context.Context) {
	if !s.Toggles.SyncEnabled() {
		return
	}
	if state, _ := s.Status.State(); state == SyncSyncing {
		return
	}
	if err := s.Engine.Sync(ctx); err != nil {
		s.Log.Error().Err(err).Msg("scheduled sync failed")
	}
}
