package presence

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Hibiki/pkg/logging"
)

const defaultInterval = time.Minute

// StatusUpdater is the part of *discordgo.Session that sets the presence
type StatusUpdater interface {
	UpdateStatusComplex(usd discordgo.UpdateStatusData) (err error)
}

// SessionCounter reports how many voice channels the bot is in
type SessionCounter interface {
	ActiveSessions() int
}

// PresenceManager manages the bot's presence
type PresenceManager struct {
	updater  StatusUpdater
	sessions SessionCounter
	interval time.Duration
	logger   logging.Logger

	mu        sync.Mutex
	lastCount int
	published bool
}

// NewPresenceManager creates a new presence manager
func NewPresenceManager(updater StatusUpdater, sessions SessionCounter, logger logging.Logger) *PresenceManager {
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &PresenceManager{
		updater:  updater,
		sessions: sessions,
		interval: defaultInterval,
		logger:   logger.With(logging.String("component", "presence")),
	}
}

// Update publishes the presence if the session count changed since the
// last update.
func (pm *PresenceManager) Update() {
	count := pm.sessions.ActiveSessions()

	pm.mu.Lock()
	defer pm.mu.Unlock()
	if pm.published && count == pm.lastCount {
		return
	}

	if err := pm.updater.UpdateStatusComplex(statusData(count)); err != nil {
		pm.logger.Warn("Failed to update bot presence", logging.Error(err))
		return
	}
	pm.lastCount = count
	pm.published = true
}

func statusData(count int) discordgo.UpdateStatusData {
	name := "/speak"
	state := "Idle"
	activityType := discordgo.ActivityTypeListening
	if count > 0 {
		name = "in " + strconv.Itoa(count) + " voice channel"
		if count > 1 {
			name += "s"
		}
		state = "Speaking"
		activityType = discordgo.ActivityTypeGame
	}

	return discordgo.UpdateStatusData{
		Status: "online",
		Activities: []*discordgo.Activity{
			{
				Name:  name,
				Type:  activityType,
				State: state,
			},
		},
	}
}

// StartPeriodicUpdates refreshes the presence until ctx is cancelled
func (pm *PresenceManager) StartPeriodicUpdates(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(pm.interval)
		defer ticker.Stop()

		pm.Update()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pm.Update()
			}
		}
	}()
}
