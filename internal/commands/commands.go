package commands

import (
	"context"
	"io"
	"math/rand"

	"github.com/latoulicious/Hibiki/pkg/logging"
	"github.com/latoulicious/Hibiki/pkg/tts"
	"github.com/latoulicious/Hibiki/pkg/voice"
)

// Voice is the part of the session controller the commands drive
type Voice interface {
	Join(ctx context.Context, channelID, guildID string, connector voice.Connector) (voice.Connection, error)
	IsConnected(guildID string) bool
	PlayAudio(ctx context.Context, guildID string, audio io.Reader) error
	Disconnect(guildID string)
}

// Preferences stores each user's default voice
type Preferences interface {
	SetDefaultVoice(userID, voiceID string)
	DefaultVoice(userID string) (string, bool)
}

// Request describes who invoked a command and where
type Request struct {
	GuildID  string
	UserID   string
	UserName string
	// VoiceChannelID is the channel the invoking user is in, empty if none
	VoiceChannelID   string
	VoiceChannelName string
}

// Reply is what the bot answers with
type Reply struct {
	Content   string
	Ephemeral bool
}

// Deps holds the services commands depend on
type Deps struct {
	Voice       Voice
	Connector   voice.Connector
	Speech      tts.Provider
	Preferences Preferences
	Limiter     *SpeakLimiter
	Logger      logging.Logger
	// Intn returns a random int in [0, n); defaults to math/rand
	Intn func(n int) int
}

// Handler implements the bot's commands independently of Discord's
// interaction plumbing.
type Handler struct {
	voice     Voice
	connector voice.Connector
	speech    tts.Provider
	prefs     Preferences
	limiter   *SpeakLimiter
	logger    logging.Logger
	intn      func(n int) int
}

// New creates a command handler
func New(deps Deps) *Handler {
	h := &Handler{
		voice:     deps.Voice,
		connector: deps.Connector,
		speech:    deps.Speech,
		prefs:     deps.Preferences,
		limiter:   deps.Limiter,
		logger:    deps.Logger,
		intn:      deps.Intn,
	}
	if h.logger == nil {
		h.logger = logging.NullLogger()
	}
	h.logger = h.logger.With(logging.String("component", "commands"))
	if h.intn == nil {
		h.intn = rand.Intn
	}
	return h
}

// Join joins the invoking user's voice channel
func (h *Handler) Join(ctx context.Context, req Request) Reply {
	if req.VoiceChannelID == "" {
		return Reply{Content: "You must be in a voice channel!", Ephemeral: true}
	}

	h.logger.Info("Join command executed",
		logging.String("guild_id", req.GuildID),
		logging.String("user_id", req.UserID),
		logging.String("channel_id", req.VoiceChannelID),
	)

	if _, err := h.voice.Join(ctx, req.VoiceChannelID, req.GuildID, h.connector); err != nil {
		h.logger.Error("Error in join command", logging.String("guild_id", req.GuildID), logging.Error(err))
		return Reply{Content: "Failed to join voice channel!", Ephemeral: true}
	}

	name := req.VoiceChannelName
	if name == "" {
		name = "the voice channel"
	}
	return Reply{Content: "Joined " + name + "!"}
}

// Leave disconnects from the guild's voice channel
func (h *Handler) Leave(_ context.Context, req Request) Reply {
	h.logger.Info("Leave command executed",
		logging.String("guild_id", req.GuildID),
		logging.String("user_id", req.UserID),
	)

	if !h.voice.IsConnected(req.GuildID) {
		return Reply{Content: "I am not in a voice channel!", Ephemeral: true}
	}

	h.voice.Disconnect(req.GuildID)
	return Reply{Content: "Left the voice channel!"}
}

// Set stores the user's default voice for /speak
func (h *Handler) Set(_ context.Context, req Request, voiceID string) Reply {
	if voiceID == "" {
		return Reply{Content: "Failed to set default voice!", Ephemeral: true}
	}

	h.logger.Info("Processing set command",
		logging.String("user_id", req.UserID),
		logging.String("voice_id", voiceID),
	)
	h.prefs.SetDefaultVoice(req.UserID, voiceID)

	return Reply{
		Content:   "Default voice set to: " + voiceID + "\nYou can now use `/speak [text]` without specifying a voice ID!",
		Ephemeral: true,
	}
}
