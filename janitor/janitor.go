// Package janitor runs a periodic background task that logs cache and
// tracking pool occupancy, grounded on the teacher's main.go cron
// wiring (github.com/robfig/cron/v3) for background periodic work.
package janitor

import (
	"github.com/robfig/cron/v3"

	"hlsproxy/cachepool"
	"hlsproxy/logger"
	"hlsproxy/trackingpool"
)

// Janitor periodically logs a one-line occupancy summary of the cache
// and tracking pools.
type Janitor struct {
	cron         *cron.Cron
	cachePool    *cachepool.Pool
	trackingPool *trackingpool.Pool
	log          logger.Logger
}

// New builds a Janitor that logs on the given cron schedule (standard
// five-field cron syntax, or a descriptor such as "@every 5m") once
// Start is called.
func New(schedule string, cachePool *cachepool.Pool, trackingPool *trackingpool.Pool, log logger.Logger) (*Janitor, error) {
	j := &Janitor{
		cron:         cron.New(),
		cachePool:    cachePool,
		trackingPool: trackingPool,
		log:          log,
	}

	if _, err := j.cron.AddFunc(schedule, j.logStats); err != nil {
		return nil, err
	}

	return j, nil
}

// Start begins the janitor's cron scheduler in the background.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the janitor's cron scheduler, waiting for any in-flight
// run to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) logStats() {
	cacheCount, cacheBytes := j.cachePool.Stats()
	trackCount := j.trackingPool.Stats()
	j.log.Logf("janitor: cache pool: %d items, %d bytes; tracking pool: %d origins", cacheCount, cacheBytes, trackCount)
}
