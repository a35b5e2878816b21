package commands

import (
	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Hibiki/pkg/logging"
)

// Command names
const (
	NameJoin    = "join"
	NameLeave   = "leave"
	NameSpeak   = "speak"
	NameSpeakAs = "speakas"
	NameSet     = "set"
	NameRoll    = "roll"
)

// Definitions returns the slash commands the bot serves
func Definitions() []*discordgo.ApplicationCommand {
	maxLen := MaxSpeakLength

	return []*discordgo.ApplicationCommand{
		{
			Name:        NameJoin,
			Description: "Join your current voice channel",
		},
		{
			Name:        NameLeave,
			Description: "Leave the voice channel",
		},
		{
			Name:        NameSpeak,
			Description: "Text-to-speech using your default voice",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "text",
					Description: "Text to speak",
					Required:    true,
					MaxLength:   maxLen,
				},
			},
		},
		{
			Name:        NameSpeakAs,
			Description: "Text-to-speech using ElevenLabs with a specific voice ID",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "voiceid",
					Description: "ElevenLabs voice ID",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "text",
					Description: "Text to speak",
					Required:    true,
					MaxLength:   maxLen,
				},
			},
		},
		{
			Name:        NameSet,
			Description: "Set your default ElevenLabs voice ID",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "voiceid",
					Description: "ElevenLabs voice ID to use by default",
					Required:    true,
				},
			},
		},
		{
			Name:        NameRoll,
			Description: "Roll dice using standard notation (e.g., 1d20, 2d6+5)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "dice",
					Description: "Dice notation (e.g., 1d20, 2d6+5, 1d100-10)",
					Required:    true,
				},
			},
		},
	}
}

// RegisterSlashCommands replaces the application's commands with
// Definitions. An empty guildID registers them globally.
func RegisterSlashCommands(s *discordgo.Session, appID, guildID string, logger logging.Logger) error {
	defs := Definitions()
	logger.Info("Registering slash commands",
		logging.String("guild_id", guildID),
		logging.Int("count", len(defs)),
	)

	created, err := s.ApplicationCommandBulkOverwrite(appID, guildID, defs)
	if err != nil {
		logger.Error("Error registering slash commands", logging.Error(err))
		return err
	}

	for _, cmd := range created {
		logger.Debug("Registered command", logging.String("command", cmd.Name))
	}
	logger.Info("All slash commands registered successfully", logging.Int("count", len(created)))
	return nil
}

// DeleteAllSlashCommands deletes every command of the application
func DeleteAllSlashCommands(s *discordgo.Session, appID, guildID string, logger logging.Logger) error {
	logger.Info("Deleting all slash commands", logging.String("guild_id", guildID))

	cmds, err := s.ApplicationCommands(appID, guildID)
	if err != nil {
		logger.Error("Error fetching commands", logging.Error(err))
		return err
	}

	for _, cmd := range cmds {
		if err := s.ApplicationCommandDelete(appID, guildID, cmd.ID); err != nil {
			logger.Error("Error deleting command", logging.String("command", cmd.Name), logging.Error(err))
			return err
		}
		logger.Info("Deleted command", logging.String("command", cmd.Name))
	}

	logger.Info("All slash commands deleted successfully")
	return nil
}

// DeleteSpecificSlashCommand deletes one command by name. A missing command
// is not an error.
func DeleteSpecificSlashCommand(s *discordgo.Session, appID, guildID, commandName string, logger logging.Logger) error {
	cmds, err := s.ApplicationCommands(appID, guildID)
	if err != nil {
		logger.Error("Error fetching commands", logging.Error(err))
		return err
	}

	for _, cmd := range cmds {
		if cmd.Name == commandName {
			if err := s.ApplicationCommandDelete(appID, guildID, cmd.ID); err != nil {
				logger.Error("Error deleting command", logging.String("command", cmd.Name), logging.Error(err))
				return err
			}
			logger.Info("Deleted command", logging.String("command", cmd.Name))
			return nil
		}
	}

	logger.Warn("Command not found", logging.String("command", commandName))
	return nil
}
