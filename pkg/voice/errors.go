package voice

import "errors"

// Session errors
var (
	ErrNoSession           = errors.New("no voice connection for guild")
	ErrSessionClosed       = errors.New("voice session closed")
	ErrPlaybackInterrupted = errors.New("playback interrupted")
	ErrPlaybackTimeout     = errors.New("playback timed out")
)

// Transport errors
var (
	ErrConnectionDestroyed = errors.New("connection destroyed")
	ErrFrameSendTimeout    = errors.New("timeout sending opus frame")
	ErrUserNotInVoice      = errors.New("user is not in a voice channel")
)

// VoiceConnectionError is returned when an operation needs an active voice
// session and none is usable, or when the player itself fails.
type VoiceConnectionError struct {
	GuildID string
	Err     error
}

func (e *VoiceConnectionError) Error() string {
	return "voice connection error: " + e.Err.Error()
}

func (e *VoiceConnectionError) Unwrap() error {
	return e.Err
}

func newVoiceError(guildID string, err error) *VoiceConnectionError {
	return &VoiceConnectionError{GuildID: guildID, Err: err}
}
