// Package reaper periodically evicts members whose tracked activity is older
// than the configured threshold from public groups.
package reaper

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"group_directory_bot/internal/domain"
	"group_directory_bot/internal/logging"
	"group_directory_bot/internal/observability"
)

type directoryStore interface {
	ListLastSeens(ctx context.Context) ([]domain.LastSeen, error)
	RemoveLastSeen(ctx context.Context, groupID int64, addr string) error
}

type memberRemover interface {
	RemoveMember(ctx context.Context, chatID int64, addr string) error
}

// Reaper sweeps activity markers on a fixed wall-clock period. A non-positive
// threshold disables sweeping; the loop never exits the process on errors.
type Reaper struct {
	store    directoryStore
	chats    memberRemover
	logger   *logrus.Entry
	maxAge   time.Duration
	interval time.Duration
	clock    func() time.Time
}

// New constructs a Reaper with the given inactivity threshold and sweep
// period.
func New(store directoryStore, chats memberRemover, maxAge, interval time.Duration, logger *logrus.Entry) *Reaper {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Reaper{
		store:    store,
		chats:    chats,
		logger:   logger,
		maxAge:   maxAge,
		interval: interval,
		clock:    time.Now,
	}
}

// Run sweeps on every tick until ctx is canceled.
func (r *Reaper) Run(ctx context.Context) {
	if r == nil || r.store == nil || r.chats == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	r.logger.WithFields(logging.Fields{
		"event":    "reaper_started",
		"max_age":  r.maxAge.String(),
		"interval": r.interval.String(),
	}).Info("inactivity reaper running")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.WithField("event", "reaper_stopped").Info("inactivity reaper stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one reaping cycle: every marker older than the threshold is
// deleted from the store, then the member's removal from the group is
// attempted once. Removal failures are logged and do not abort the cycle.
func (r *Reaper) Sweep(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.WithFields(logging.Fields{
				"event": "reaper_panic",
				"panic": rec,
			}).Error("recovered from reaper failure")
		}
	}()

	if r.maxAge <= 0 {
		return
	}

	markers, err := r.store.ListLastSeens(ctx)
	if err != nil {
		r.logger.WithField("event", "reaper_list_failed").WithError(err).Error("failed to list activity markers")
		return
	}

	now := r.clock()
	for _, marker := range markers {
		if now.Sub(marker.Timestamp) <= r.maxAge {
			continue
		}

		if err := r.store.RemoveLastSeen(ctx, marker.GroupID, marker.Addr); err != nil {
			r.logger.WithFields(logging.Fields{
				"event":    "reaper_delete_failed",
				"group_id": marker.GroupID,
				"addr":     marker.Addr,
			}).WithError(err).Error("failed to delete stale activity marker")
			continue
		}

		observability.IncMemberReaped()
		r.logger.WithFields(logging.Fields{
			"event":    "member_reaped",
			"group_id": marker.GroupID,
			"addr":     marker.Addr,
			"last_ts":  marker.Timestamp,
		}).Info("evicting inactive member")

		if err := r.chats.RemoveMember(ctx, marker.GroupID, marker.Addr); err != nil {
			r.logger.WithFields(logging.Fields{
				"event":    "reaper_remove_failed",
				"group_id": marker.GroupID,
				"addr":     marker.Addr,
			}).WithError(err).Warn("failed to remove inactive member from group")
		}
	}
}
