package tts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *ElevenLabs {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewElevenLabs(Config{APIKey: "test-key", BaseURL: srv.URL + "/"}, nil)
}

func TestGenerateSpeech(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/text-to-speech/voice-1/stream", r.URL.Path)
		assert.Equal(t, DefaultOutputFormat, r.URL.Query().Get("output_format"))
		assert.Equal(t, "test-key", r.Header.Get("xi-api-key"))

		var body speechRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello there", body.Text)
		assert.Equal(t, DefaultModelID, body.ModelID)

		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-audio-bytes"))
	})

	stream, err := client.GenerateSpeech(context.Background(), "hello there", "voice-1")
	require.NoError(t, err)
	defer stream.Close()

	data, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "ID3-audio-bytes", string(data))
}

func TestGenerateSpeech_StatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantIs    error
		wantMsg   string
		wantVoice bool
	}{
		{name: "unauthorized", status: 401, wantIs: ErrInvalidAPIKey, wantMsg: "ElevenLabs API error: Invalid API key"},
		{name: "unknown voice", status: 404, wantVoice: true, wantMsg: "invalid voice ID: voice-1"},
		{name: "rate limited", status: 429, wantIs: ErrRateLimited, wantMsg: "ElevenLabs API error: Rate limit exceeded"},
		{name: "server error", status: 503, wantIs: ErrServerError, wantMsg: "ElevenLabs API error: Server error"},
		{
			name:    "detail object",
			status:  400,
			body:    `{"detail":{"status":"quota_exceeded","message":"Quota exceeded"}}`,
			wantMsg: "ElevenLabs API error: Quota exceeded",
		},
		{
			name:    "detail string",
			status:  422,
			body:    `{"detail":"text too long"}`,
			wantMsg: "ElevenLabs API error: text too long",
		},
		{name: "empty body", status: 400, wantMsg: "ElevenLabs API error: Bad Request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			stream, err := client.GenerateSpeech(context.Background(), "hi", "voice-1")
			require.Error(t, err)
			assert.Nil(t, stream)
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.True(t, IsProviderError(err))

			if tt.wantIs != nil {
				assert.ErrorIs(t, err, tt.wantIs)
			}

			var invalid *InvalidVoiceIDError
			assert.Equal(t, tt.wantVoice, errors.As(err, &invalid))
		})
	}
}

func TestGenerateSpeech_RejectsEmptyInput(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := client.GenerateSpeech(context.Background(), "   ", "voice-1")
	assert.ErrorIs(t, err, ErrEmptyText)

	_, err = client.GenerateSpeech(context.Background(), "hi", "")
	var invalid *InvalidVoiceIDError
	assert.True(t, errors.As(err, &invalid))
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{name: "valid", status: 200},
		{name: "invalid", status: 401, wantErr: ErrInvalidAPIKey},
		{name: "server down", status: 500, wantErr: ErrServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/user/subscription", r.URL.Path)
				assert.Equal(t, "test-key", r.Header.Get("xi-api-key"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"tier":"free"}`))
			})

			err := client.ValidateAPIKey(context.Background())
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestIsProviderError(t *testing.T) {
	assert.False(t, IsProviderError(errors.New("plain")))
	assert.False(t, IsProviderError(nil))
	assert.True(t, IsProviderError(&APIError{Message: "x"}))
}
