package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Hibiki/internal/commands"
	"github.com/latoulicious/Hibiki/internal/config"
	"github.com/latoulicious/Hibiki/pkg/logging"
)

func main() {
	action := flag.String("action", "register", "Action to perform: register, delete-all, delete-specific, check")
	commandName := flag.String("command", "", "Command name for delete-specific action")
	guildID := flag.String("guild", "", "Guild to manage commands in (defaults to DISCORD_GUILD_ID, empty for global)")
	flag.Parse()

	cfg, err := config.LoadDeployConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: "stdout"})

	guild := *guildID
	if guild == "" {
		guild = cfg.Discord.GuildID
	}

	// Commands are managed over REST, no gateway connection needed
	dg, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		log.Fatalf("Failed to create Discord session: %v", err)
	}
	appID := cfg.Discord.ClientID

	switch *action {
	case "register":
		err = commands.RegisterSlashCommands(dg, appID, guild, logger)
	case "delete-all":
		err = commands.DeleteAllSlashCommands(dg, appID, guild, logger)
	case "delete-specific":
		if *commandName == "" {
			log.Fatal("Please provide a command name with -command flag")
		}
		err = commands.DeleteSpecificSlashCommand(dg, appID, guild, *commandName, logger)
	case "check":
		err = checkCommands(dg, appID, guild)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("Failed to %s slash commands: %v", *action, err)
	}
}

func checkCommands(s *discordgo.Session, appID, guildID string) error {
	cmds, err := s.ApplicationCommands(appID, guildID)
	if err != nil {
		return err
	}

	scope := "global"
	if guildID != "" {
		scope = "guild " + guildID
	}
	if len(cmds) == 0 {
		fmt.Printf("No %s commands found.\n", scope)
		return nil
	}
	for _, cmd := range cmds {
		fmt.Printf("%s: %s (ID: %s) - %s\n", scope, cmd.Name, cmd.ID, cmd.Description)
	}
	return nil
}
