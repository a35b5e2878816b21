package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Hibiki/internal/commands"
	"github.com/latoulicious/Hibiki/pkg/logging"
	"github.com/latoulicious/Hibiki/pkg/voice"
)

// Interaction tokens stay valid for 15 minutes; deferred commands must
// finish well within that.
const deferredTimeout = 10 * time.Minute

const msgCommandFailed = "There was an error executing this command!"

// Responder is the part of *discordgo.Session used to answer interactions
type Responder interface {
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
	InteractionResponseEdit(interaction *discordgo.Interaction, newresp *discordgo.WebhookEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// VoiceLocator returns the voice channel a user is in, or an empty id
type VoiceLocator func(guildID, userID string) (channelID, channelName string)

// SlashHandler routes slash command interactions to the command handler
type SlashHandler struct {
	cmds   *commands.Handler
	locate VoiceLocator
	logger logging.Logger
}

// NewSlashHandler creates a handler that looks up voice channels in the
// session's state cache.
func NewSlashHandler(s *discordgo.Session, cmds *commands.Handler, logger logging.Logger) *SlashHandler {
	return NewSlashHandlerWithLocator(cmds, StateVoiceLocator(s), logger)
}

// NewSlashHandlerWithLocator creates a handler with a custom voice locator
func NewSlashHandlerWithLocator(cmds *commands.Handler, locate VoiceLocator, logger logging.Logger) *SlashHandler {
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &SlashHandler{
		cmds:   cmds,
		locate: locate,
		logger: logger.With(logging.String("component", "slash_handler")),
	}
}

// StateVoiceLocator finds a user's voice channel through the state cache,
// which requires the GuildVoiceStates intent.
func StateVoiceLocator(s *discordgo.Session) VoiceLocator {
	return func(guildID, userID string) (string, string) {
		channelID, err := voice.FindUserVoiceChannel(s, guildID, userID)
		if err != nil {
			return "", ""
		}
		if ch, err := s.State.Channel(channelID); err == nil {
			return channelID, ch.Name
		}
		return channelID, ""
	}
}

// Handle is registered with discordgo's AddHandler
func (h *SlashHandler) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	h.handle(s, i)
}

func (h *SlashHandler) handle(r Responder, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	req, ok := h.request(i)
	if !ok {
		return
	}

	data := i.ApplicationCommandData()
	logger := h.logger.With(
		logging.String("command", data.Name),
		logging.String("guild_id", req.GuildID),
		logging.String("user_id", req.UserID),
	)

	if req.GuildID == "" {
		h.respond(r, i, commands.Reply{Content: "This command can only be used in a server.", Ephemeral: true}, logger)
		return
	}

	deferred := false
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Error executing command", logging.String("panic", fmt.Sprint(rec)))
			reply := commands.Reply{Content: msgCommandFailed, Ephemeral: true}
			if deferred {
				h.edit(r, i, reply, logger)
			} else {
				h.respond(r, i, reply, logger)
			}
		}
	}()

	switch data.Name {
	case commands.NameJoin:
		h.respond(r, i, h.cmds.Join(context.Background(), req), logger)
	case commands.NameLeave:
		h.respond(r, i, h.cmds.Leave(context.Background(), req), logger)
	case commands.NameSet:
		h.respond(r, i, h.cmds.Set(context.Background(), req, optionString(data.Options, "voiceid")), logger)
	case commands.NameRoll:
		h.respond(r, i, h.cmds.Roll(req, optionString(data.Options, "dice")), logger)

	case commands.NameSpeak, commands.NameSpeakAs:
		// Synthesis and playback take longer than the 3s response window
		if err := r.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		}); err != nil {
			logger.Error("Error acknowledging interaction", logging.Error(err))
			return
		}
		deferred = true

		ctx, cancel := context.WithTimeout(context.Background(), deferredTimeout)
		defer cancel()

		text := optionString(data.Options, "text")
		var reply commands.Reply
		if data.Name == commands.NameSpeak {
			reply = h.cmds.Speak(ctx, req, text)
		} else {
			reply = h.cmds.SpeakAs(ctx, req, optionString(data.Options, "voiceid"), text)
		}
		h.edit(r, i, reply, logger)

	default:
		logger.Warn("Command not found")
		h.respond(r, i, commands.Reply{Content: "Unknown command.", Ephemeral: true}, logger)
	}
}

// request builds a command request; the voice channel is only looked up for
// commands that need it.
func (h *SlashHandler) request(i *discordgo.InteractionCreate) (commands.Request, bool) {
	user := i.User
	nick := ""
	if i.Member != nil && i.Member.User != nil {
		user = i.Member.User
		nick = i.Member.Nick
	}
	if user == nil || user.Bot {
		return commands.Request{}, false
	}

	req := commands.Request{
		GuildID:  i.GuildID,
		UserID:   user.ID,
		UserName: displayName(user, nick),
	}
	if i.GuildID != "" && i.ApplicationCommandData().Name == commands.NameJoin && h.locate != nil {
		req.VoiceChannelID, req.VoiceChannelName = h.locate(i.GuildID, user.ID)
	}
	return req, true
}

func (h *SlashHandler) respond(r Responder, i *discordgo.InteractionCreate, reply commands.Reply, logger logging.Logger) {
	data := &discordgo.InteractionResponseData{Content: reply.Content}
	if reply.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}

	err := r.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		logger.Error("Error sending interaction response", logging.Error(err))
	}
}

// edit replaces the deferred "thinking" message. Ephemeral cannot be applied
// after deferring, so the reply is always public.
func (h *SlashHandler) edit(r Responder, i *discordgo.InteractionCreate, reply commands.Reply, logger logging.Logger) {
	content := reply.Content
	if _, err := r.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &content}); err != nil {
		logger.Error("Error sending interaction response", logging.Error(err))
	}
}

func optionString(opts []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, opt := range opts {
		if opt.Name == name && opt.Type == discordgo.ApplicationCommandOptionString {
			return opt.StringValue()
		}
	}
	return ""
}

func displayName(u *discordgo.User, nick string) string {
	switch {
	case nick != "":
		return nick
	case u.GlobalName != "":
		return u.GlobalName
	default:
		return u.Username
	}
}
