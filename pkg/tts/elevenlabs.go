package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/latoulicious/Hibiki/pkg/logging"
)

const (
	DefaultBaseURL      = "https://api.elevenlabs.io"
	DefaultModelID      = "eleven_multilingual_v2"
	DefaultOutputFormat = "mp3_44100_128"

	maxErrorBody = 4096
)

// Provider turns text into an encoded audio stream
type Provider interface {
	GenerateSpeech(ctx context.Context, text, voiceID string) (io.ReadCloser, error)
}

// Config contains configuration for the ElevenLabs client
type Config struct {
	APIKey       string
	BaseURL      string
	ModelID      string
	OutputFormat string
	// HeaderTimeout bounds the wait for response headers. The audio body
	// itself is only bounded by the request context.
	HeaderTimeout time.Duration
	HTTPClient    *http.Client
}

// ElevenLabs is a Provider backed by the ElevenLabs streaming REST API
type ElevenLabs struct {
	cfg    Config
	client *http.Client
	logger logging.Logger
}

// NewElevenLabs creates a client, filling in defaults for empty fields
func NewElevenLabs(cfg Config, logger logging.Logger) *ElevenLabs {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = DefaultModelID
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		cfg.OutputFormat = DefaultOutputFormat
	}
	if cfg.HeaderTimeout <= 0 {
		cfg.HeaderTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.NullLogger()
	}

	client := cfg.HTTPClient
	if client == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = cfg.HeaderTimeout
		client = &http.Client{Transport: transport}
	}

	return &ElevenLabs{
		cfg:    cfg,
		client: client,
		logger: logger.With(logging.String("component", "elevenlabs")),
	}
}

type speechRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// GenerateSpeech requests speech for text in the given voice and returns the
// audio stream. The caller must close it. Non-2xx responses are mapped to
// InvalidVoiceIDError or *APIError.
func (e *ElevenLabs) GenerateSpeech(ctx context.Context, text, voiceID string) (io.ReadCloser, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if strings.TrimSpace(voiceID) == "" {
		return nil, &InvalidVoiceIDError{VoiceID: voiceID}
	}

	e.logger.Info("Generating speech",
		logging.String("voice_id", voiceID),
		logging.Int("text_length", len(text)),
	)

	payload, err := json.Marshal(speechRequest{Text: text, ModelID: e.cfg.ModelID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode speech request: %w", err)
	}

	u := e.cfg.BaseURL + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream?" +
		url.Values{"output_format": {e.cfg.OutputFormat}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create speech request: %w", err)
	}
	req.Header.Set("xi-api-key", e.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.client.Do(req)
	if err != nil {
		e.logger.Error("ElevenLabs request failed", logging.String("voice_id", voiceID), logging.Error(err))
		return nil, &APIError{Message: err.Error(), Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		apiErr := errorFromResponse(resp, voiceID)
		e.logger.Error("ElevenLabs API error",
			logging.String("voice_id", voiceID),
			logging.Int("status_code", resp.StatusCode),
			logging.Error(apiErr),
		)
		return nil, apiErr
	}

	e.logger.Info("Speech generation successful", logging.String("voice_id", voiceID))
	return resp.Body, nil
}

// ValidateAPIKey checks the key against the subscription endpoint
func (e *ElevenLabs) ValidateAPIKey(ctx context.Context) error {
	e.logger.Info("Validating ElevenLabs API key")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.BaseURL+"/v1/user/subscription", nil)
	if err != nil {
		return fmt.Errorf("failed to create subscription request: %w", err)
	}
	req.Header.Set("xi-api-key", e.cfg.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to validate ElevenLabs API key: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("check ELEVENLABS_API_KEY: %w", ErrInvalidAPIKey)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("failed to validate ElevenLabs API key: %w", errorFromResponse(resp, ""))
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	e.logger.Info("ElevenLabs API key is valid")
	return nil
}

func errorFromResponse(resp *http.Response, voiceID string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	switch code := resp.StatusCode; {
	case code == http.StatusUnauthorized:
		return &APIError{StatusCode: code, Message: "Invalid API key", Err: ErrInvalidAPIKey}
	case code == http.StatusNotFound:
		return &InvalidVoiceIDError{VoiceID: voiceID}
	case code == http.StatusTooManyRequests:
		return &APIError{StatusCode: code, Message: "Rate limit exceeded", Err: ErrRateLimited}
	case code >= 500:
		return &APIError{StatusCode: code, Message: "Server error", Err: ErrServerError}
	default:
		return &APIError{StatusCode: code, Message: detailMessage(body, code)}
	}
}

// detailMessage extracts a message from an ElevenLabs error body. The
// detail field is either a string or an object with a message.
func detailMessage(body []byte, code int) string {
	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Detail) > 0 {
		var text string
		if json.Unmarshal(envelope.Detail, &text) == nil && text != "" {
			return text
		}
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(envelope.Detail, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
	}
	if msg := strings.TrimSpace(string(body)); msg != "" && !strings.HasPrefix(msg, "{") {
		return msg
	}
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "Unknown error"
}

// IsProviderError reports whether err came from the TTS provider rather than
// the transport or the caller.
func IsProviderError(err error) bool {
	var invalid *InvalidVoiceIDError
	var apiErr *APIError
	return errors.As(err, &invalid) || errors.As(err, &apiErr)
}
