package jobs

import "github.com/sirupsen/logrus"

type Job interface {
	Start() error
	Stop()
}

// JobManager starts and stops the scheduled jobs as a unit.
type JobManager struct {
	jobs   []Job
	logger *logrus.Entry
}

func NewJobManager(logger *logrus.Entry, jobs ...Job) *JobManager {
	return &JobManager{jobs: jobs, logger: logger.WithField("component", "job_manager")}
}

// StartAll starts every job; on failure the ones already running are stopped.
func (m *JobManager) StartAll() error {
	for i, j := range m.jobs {
		if err := j.Start(); err != nil {
			for _, started := range m.jobs[:i] {
				started.Stop()
			}
			return err
		}
	}
	m.logger.WithField("jobs", len(m.jobs)).Info("all jobs started")
	return nil
}

func (m *JobManager) StopAll() {
	for _, j := range m.jobs {
		j.Stop()
	}
	m.logger.Info("all jobs stopped")
}
