package cron

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/latoulicious/Hibiki/pkg/logging"
	"github.com/robfig/cron/v3"
)

const (
	DefaultPingSchedule = "@every 1m"
	pingTimeout         = 10 * time.Second
)

// PingManager periodically requests a URL so hosting platforms that idle
// inactive services keep the bot alive.
type PingManager struct {
	cron      *cron.Cron
	cronEntry cron.EntryID
	url       string
	schedule  string
	client    *http.Client
	logger    logging.Logger

	mutex      sync.RWMutex
	isRunning  bool
	lastRun    time.Time
	lastStatus int
	lastErr    error
}

// NewPingManager creates a ping manager with the default schedule
func NewPingManager(url string, logger logging.Logger) (*PingManager, error) {
	return NewPingManagerWithSchedule(url, DefaultPingSchedule, logger)
}

// NewPingManagerWithSchedule creates a ping manager with a custom schedule.
// Schedules accept an optional seconds field and descriptors like "@every 30s".
func NewPingManagerWithSchedule(url, schedule string, logger logging.Logger) (*PingManager, error) {
	if logger == nil {
		logger = logging.NullLogger()
	}
	if schedule == "" {
		schedule = DefaultPingSchedule
	}

	pm := &PingManager{
		cron:     cron.New(cron.WithSeconds()),
		url:      url,
		schedule: schedule,
		client:   &http.Client{Timeout: pingTimeout},
		logger:   logger.With(logging.String("component", "ping"), logging.String("url", url)),
	}

	entryID, err := pm.cron.AddFunc(schedule, pm.ping)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule ping %q: %w", schedule, err)
	}
	pm.cronEntry = entryID
	return pm, nil
}

// Start pings once immediately and then on schedule
func (pm *PingManager) Start() {
	pm.logger.Info("Starting ping service", logging.String("schedule", pm.schedule))
	pm.cron.Start()
	go pm.ping()
}

func (pm *PingManager) ping() {
	pm.mutex.Lock()
	if pm.isRunning {
		pm.mutex.Unlock()
		pm.logger.Debug("Ping already in progress, skipping")
		return
	}
	pm.isRunning = true
	pm.mutex.Unlock()

	status, err := pm.do()

	pm.mutex.Lock()
	pm.isRunning = false
	pm.lastRun = time.Now()
	pm.lastStatus = status
	pm.lastErr = err
	pm.mutex.Unlock()

	if err != nil {
		pm.logger.Warn("Ping failed", logging.Error(err))
		return
	}
	pm.logger.Debug("Ping successful", logging.Int("status", status))
}

func (pm *PingManager) do() (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pm.url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := pm.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return resp.StatusCode, nil
}

// Stop stops the scheduler and waits for a running ping to finish
func (pm *PingManager) Stop() {
	if pm.cron != nil {
		<-pm.cron.Stop().Done()
		pm.logger.Info("Ping service stopped")
	}
}

// NextRun returns the next scheduled run time
func (pm *PingManager) NextRun() time.Time {
	return pm.cron.Entry(pm.cronEntry).Next
}

// IsRunning returns whether a ping is currently in progress
func (pm *PingManager) IsRunning() bool {
	pm.mutex.RLock()
	defer pm.mutex.RUnlock()
	return pm.isRunning
}

// LastResult returns when the last ping finished, its HTTP status and error
func (pm *PingManager) LastResult() (time.Time, int, error) {
	pm.mutex.RLock()
	defer pm.mutex.RUnlock()
	return pm.lastRun, pm.lastStatus, pm.lastErr
}

// Schedule returns the cron schedule
func (pm *PingManager) Schedule() string {
	return pm.schedule
}
