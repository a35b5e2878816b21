package commands

import (
	"context"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/latoulicious/Hibiki/pkg/logging"
	"github.com/latoulicious/Hibiki/pkg/tts"
	"github.com/latoulicious/Hibiki/pkg/voice"
)

// MaxSpeakLength is the longest text /speak and /speakas accept
const MaxSpeakLength = 5000

const (
	msgNotInVoice     = "I am not in a voice channel! Use `/join` first."
	msgNoDefaultVoice = "You haven't set a default voice! Use `/set [voiceid]` first."
	msgSpeaking       = "Speaking!"
	msgUnexpected     = "An unexpected error occurred. Please try again."
)

// Speak reads text aloud in the user's default voice
func (h *Handler) Speak(ctx context.Context, req Request, text string) Reply {
	if !h.voice.IsConnected(req.GuildID) {
		return Reply{Content: msgNotInVoice}
	}

	voiceID, ok := h.prefs.DefaultVoice(req.UserID)
	if !ok {
		return Reply{Content: msgNoDefaultVoice}
	}

	return h.speak(ctx, req, voiceID, text, "speak")
}

// SpeakAs reads text aloud in the given voice
func (h *Handler) SpeakAs(ctx context.Context, req Request, voiceID, text string) Reply {
	if !h.voice.IsConnected(req.GuildID) {
		return Reply{Content: msgNotInVoice}
	}
	return h.speak(ctx, req, voiceID, text, "speakas")
}

func (h *Handler) speak(ctx context.Context, req Request, voiceID, text, command string) Reply {
	if n := utf8.RuneCountInString(text); n > MaxSpeakLength {
		return Reply{Content: fmt.Sprintf("Text is too long! The limit is %d characters.", MaxSpeakLength)}
	}

	if ok, wait := h.limiter.Allow(req.UserID); !ok {
		seconds := int(math.Ceil(wait.Seconds()))
		return Reply{Content: fmt.Sprintf("You're speaking too fast! Try again in %ds.", seconds), Ephemeral: true}
	}

	logger := h.logger.With(
		logging.String("command", command),
		logging.String("guild_id", req.GuildID),
		logging.String("user_id", req.UserID),
		logging.String("voice_id", voiceID),
	)
	logger.Info("Processing speak command", logging.Int("text_length", len(text)))

	stream, err := h.speech.GenerateSpeech(ctx, text, voiceID)
	if err != nil {
		if tts.IsProviderError(err) {
			logger.Warn("TTS provider rejected speak request", logging.Error(err))
		} else {
			logger.Error("Error in speak command", logging.Error(err))
		}
		return Reply{Content: speakErrorReply(err)}
	}
	defer stream.Close()

	if err := h.voice.PlayAudio(ctx, req.GuildID, stream); err != nil {
		logger.Error("Error in speak command", logging.Error(err))
		return Reply{Content: speakErrorReply(err)}
	}

	logger.Info("Speak command completed successfully")
	return Reply{Content: msgSpeaking}
}

func speakErrorReply(err error) string {
	var invalid *tts.InvalidVoiceIDError
	var apiErr *tts.APIError
	var voiceErr *voice.VoiceConnectionError

	switch {
	case errors.As(err, &invalid):
		return "Invalid voice ID: " + invalid.VoiceID
	case errors.As(err, &apiErr):
		return apiErr.Error()
	case errors.As(err, &voiceErr):
		return "Voice connection error: " + voiceErr.Err.Error()
	default:
		return msgUnexpected
	}
}
