// services/reaper.go
package services

import (
	"errors"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"play-session-system/models"
)

const (
	// A host silent for this long forfeits the session.
	hostInactivityThreshold = 1 * time.Hour
	reaperInterval          = 15 * time.Minute
)

// StartReaper launches the periodic sweep that force-ends sessions whose
// host stopped heartbeating. The returned scheduler is shut down on drain.
func (s *SessionService) StartReaper() gocron.Scheduler {
	sched, _ := gocron.NewScheduler()

	_, _ = sched.NewJob(
		gocron.DurationJob(reaperInterval),
		gocron.NewTask(func() {
			ended, err := s.sweepStaleSessions(time.Now())
			if err != nil {
				log.Printf("[Reaper] DB error: %v", err)
				return
			}
			if ended > 0 {
				log.Printf("✅ [Reaper] Force-ended %d stale session(s)", ended)
			}
		}),
	)

	sched.Start()
	return sched
}

// sweepStaleSessions ends every active session whose host-liveness
// timestamp predates the cutoff, through the normal end path so the usual
// broadcast and match-cancel cascade apply exactly once.
func (s *SessionService) sweepStaleSessions(now time.Time) (int, error) {
	cutoff := now.Add(-hostInactivityThreshold)

	var stale []models.PlaySession
	err := s.DB.Where("ended_at IS NULL AND host_last_seen_at < ?", cutoff).Find(&stale).Error
	if err != nil {
		return 0, err
	}

	ended := 0
	for i := range stale {
		if err := s.endSession(&stale[i], "host_offline"); err != nil {
			var d *DeclinedError
			if errors.As(err, &d) {
				continue // lost the race to a concurrent end, nothing to re-apply
			}
			log.Printf("[Reaper] Failed to end session %s: %v", stale[i].ID, err)
			continue
		}
		ended++
	}
	return ended, nil
}
