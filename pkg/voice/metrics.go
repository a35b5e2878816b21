package voice

import "time"

// Metrics receives session lifecycle measurements from the Controller
type Metrics interface {
	SessionOpened(guildID string)
	SessionClosed(guildID, reason string)
	PlaybackFinished(guildID, outcome string, duration time.Duration)
	ReconnectAttempt(guildID string, recovered bool)
}

// Playback outcomes reported to Metrics
const (
	OutcomeCompleted   = "completed"
	OutcomeFailed      = "failed"
	OutcomeInterrupted = "interrupted"
	OutcomeTimeout     = "timeout"
)

// Session close reasons reported to Metrics
const (
	CloseLeave            = "leave"
	CloseReconnectTimeout = "reconnect_timeout"
	CloseDestroyed        = "destroyed"
	CloseShutdown         = "shutdown"
)

type noopMetrics struct{}

func (noopMetrics) SessionOpened(string)                           {}
func (noopMetrics) SessionClosed(string, string)                   {}
func (noopMetrics) PlaybackFinished(string, string, time.Duration) {}
func (noopMetrics) ReconnectAttempt(string, bool)                  {}
