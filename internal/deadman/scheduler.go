package deadman

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Reshigan/Heirloom-sub004/internal/notify"
	"github.com/redis/go-redis/v9"
)

// reminderDays are the points before a due date at which a reminder goes
// out, mirroring the escalating cadence users expect from the product.
var reminderDays = []int{7, 3, 1}

// Scheduler is the periodic scanner driving every time-based transition:
// upcoming-reminder sends, missed check-in escalation, and cooldown-elapsed
// release. It is a polling design on purpose - the condition being watched
// is the absence of an event. Every transition it applies is a conditional
// update, so overlapping runs degrade to benign no-ops.
type Scheduler struct {
	switches    SwitchStore
	users       UserStore
	service     *Service
	coordinator *Coordinator
	dispatcher  notify.Dispatcher
	rdb         *redis.Client
	interval    time.Duration
	now         func() time.Time
}

func NewScheduler(
	switches SwitchStore,
	users UserStore,
	service *Service,
	coordinator *Coordinator,
	dispatcher notify.Dispatcher,
	rdb *redis.Client,
	interval time.Duration,
) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		switches:    switches,
		users:       users,
		service:     service,
		coordinator: coordinator,
		dispatcher:  dispatcher,
		rdb:         rdb,
		interval:    interval,
		now:         time.Now,
	}
}

// Run scans on a fixed cadence until ctx is cancelled. An immediate first
// scan catches work that accumulated while the process was down.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("switch scheduler started", "interval", s.interval.String())
	s.Scan(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Scan(ctx)
		case <-ctx.Done():
			slog.Info("switch scheduler stopped")
			return
		}
	}
}

// Scan runs one full pass. Switches are processed independently; one
// user's failure never blocks another's.
func (s *Scheduler) Scan(ctx context.Context) {
	now := s.now()

	s.sendUpcomingReminders(ctx, now)

	overdue, err := s.switches.ListOverdue(now)
	if err != nil {
		slog.Error("scheduler: list overdue switches failed", "error", err)
	} else {
		for _, sw := range overdue {
			sw := sw
			if err := s.service.HandleMissedCheckIn(&sw); err != nil {
				// Insufficient attesters stays an operational error; the
				// switch remains WARNING and is re-evaluated next scan.
				slog.Error("scheduler: missed check-in handling failed", "user_id", sw.UserID.String(), "error", err)
			}
		}
	}

	cooled, err := s.switches.ListCooldownElapsed(now.Add(-CooldownPeriod))
	if err != nil {
		slog.Error("scheduler: list cooled-down switches failed", "error", err)
	} else {
		for _, sw := range cooled {
			if err := s.coordinator.Release(sw.UserID); err != nil {
				slog.Error("scheduler: release failed", "user_id", sw.UserID.String(), "error", err)
			}
		}
	}

	slog.Info("scheduler scan complete", "overdue", len(overdue), "releasing", len(cooled))
}

func (s *Scheduler) sendUpcomingReminders(ctx context.Context, now time.Time) {
	upcoming, err := s.switches.ListUpcoming(now, now.AddDate(0, 0, 8))
	if err != nil {
		slog.Error("scheduler: list upcoming switches failed", "error", err)
		return
	}

	for _, sw := range upcoming {
		if sw.NextCheckInDue == nil {
			continue
		}
		daysUntil := int(math.Ceil(sw.NextCheckInDue.Sub(now).Hours() / 24))

		for _, d := range reminderDays {
			if daysUntil != d {
				continue
			}
			if !s.claimReminder(ctx, sw.UserID.String(), d) {
				continue
			}
			user, err := s.users.Get(sw.UserID)
			if err != nil {
				continue
			}
			if err := s.dispatcher.SendCheckInReminder(user.Email, user.FirstName, d); err != nil {
				slog.Warn("check-in reminder failed", "user_id", sw.UserID.String(), "error", err)
			}
		}
	}
}

// claimReminder takes a short-lived dedup lock so hourly scans send each
// reminder window once. Redis being unavailable fails open: a duplicate
// reminder beats a missing one.
func (s *Scheduler) claimReminder(ctx context.Context, userID string, days int) bool {
	if s.rdb == nil {
		return true
	}
	key := fmt.Sprintf("dms:reminder:%d:%s", days, userID)
	ok, err := s.rdb.SetNX(ctx, key, 1, 24*time.Hour).Result()
	if err != nil {
		slog.Warn("reminder dedup unavailable", "error", err)
		return true
	}
	return ok
}
