package tts

import "errors"

var (
	ErrInvalidAPIKey = errors.New("invalid API key")
	ErrRateLimited   = errors.New("rate limit exceeded")
	ErrServerError   = errors.New("server error")
	ErrEmptyText     = errors.New("text is required")
)

// InvalidVoiceIDError is returned when the provider does not know the voice
type InvalidVoiceIDError struct {
	VoiceID string
}

func (e *InvalidVoiceIDError) Error() string {
	return "invalid voice ID: " + e.VoiceID
}

// APIError is a failed call to the provider
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	return "ElevenLabs API error: " + e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}
