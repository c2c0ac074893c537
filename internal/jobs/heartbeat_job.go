package jobs

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"parcel/internal/modules/tracking"
)

const DefaultHeartbeatSchedule = "*/30 * * * * *"

// HeartbeatJob closes live channels that have been silent longer than
// staleAfter and logs registry gauges. The per-client ping/pong catches most
// dead peers; this sweep covers channels whose read loop is stuck.
type HeartbeatJob struct {
	registry   *tracking.Registry
	staleAfter time.Duration
	schedule   string
	cron       *cron.Cron
	logger     *logrus.Entry
	now        func() time.Time
}

func NewHeartbeatJob(registry *tracking.Registry, schedule string, staleAfter time.Duration, logger *logrus.Entry) *HeartbeatJob {
	if schedule == "" {
		schedule = DefaultHeartbeatSchedule
	}
	return &HeartbeatJob{
		registry:   registry,
		staleAfter: staleAfter,
		schedule:   schedule,
		cron:       cron.New(cron.WithSeconds()),
		logger:     logger.WithField("component", "heartbeat_job"),
		now:        time.Now,
	}
}

func (j *HeartbeatJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, func() { j.Sweep() }); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.WithField("schedule", j.schedule).Info("heartbeat job started")
	return nil
}

func (j *HeartbeatJob) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("heartbeat job stopped")
}

// Sweep closes and detaches stale channels and returns how many it closed.
func (j *HeartbeatJob) Sweep() int {
	cutoff := j.now().Add(-j.staleAfter)
	closed := 0
	for _, s := range j.registry.Snapshot() {
		if s.Conn.LastSeen().After(cutoff) {
			continue
		}
		if j.registry.Detach(s.OrderID, s.Role, s.Conn) {
			s.Conn.Close(tracking.CloseGoingAway, "heartbeat timeout")
			closed++
		}
	}
	orders, conns := j.registry.Stats()
	j.logger.WithFields(logrus.Fields{
		"orders":   orders,
		"channels": conns,
		"closed":   closed,
	}).Debug("heartbeat sweep")
	return closed
}
