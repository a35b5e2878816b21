package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Hibiki/internal/commands"
	"github.com/latoulicious/Hibiki/internal/config"
	"github.com/latoulicious/Hibiki/internal/handlers"
	"github.com/latoulicious/Hibiki/internal/metrics"
	"github.com/latoulicious/Hibiki/internal/presence"
	"github.com/latoulicious/Hibiki/internal/status"
	"github.com/latoulicious/Hibiki/pkg/cron"
	"github.com/latoulicious/Hibiki/pkg/logging"
	"github.com/latoulicious/Hibiki/pkg/preferences"
	"github.com/latoulicious/Hibiki/pkg/tts"
	"github.com/latoulicious/Hibiki/pkg/voice"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Failed to start bot: %v", err)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: "stdout",
	})
	// discordgo logs through the standard library logger
	logging.NewStdLogAdapter(logger.With(logging.String("component", "discordgo"))).SetAsStdLogger()

	logger.Info("Starting Discord ElevenLabs TTS bot", logging.String("env", cfg.Environment))

	speech := tts.NewElevenLabs(tts.Config{
		APIKey:       cfg.ElevenLabs.APIKey,
		BaseURL:      cfg.ElevenLabs.BaseURL,
		ModelID:      cfg.ElevenLabs.ModelID,
		OutputFormat: cfg.ElevenLabs.OutputFormat,
	}, logger)

	validateCtx, cancelValidate := context.WithTimeout(context.Background(), 15*time.Second)
	err = speech.ValidateAPIKey(validateCtx)
	cancelValidate()
	if err != nil {
		return err
	}

	dg, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("failed to create Discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	dg.LogLevel = discordgo.LogWarning
	if cfg.IsProduction() {
		dg.LogLevel = discordgo.LogError
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	voiceMetrics := metrics.New(registry)

	encoder := voice.DefaultEncoderConfig()
	encoder.FFmpegPath = cfg.Voice.FFmpegPath
	encoder.Bitrate = cfg.Voice.OpusBitrate

	controller := voice.NewController(
		voice.WithLogger(logger),
		voice.WithMetrics(voiceMetrics),
		voice.WithConfig(voice.Config{
			ReconnectTimeout: cfg.Voice.ReconnectTimeout,
			PlayTimeout:      cfg.Voice.PlayTimeout,
			Encoder:          encoder,
		}),
	)

	cmds := commands.New(commands.Deps{
		Voice:       controller,
		Connector:   voice.NewDiscordConnector(dg, logger),
		Speech:      speech,
		Preferences: preferences.NewStore(logger),
		Limiter:     commands.NewSpeakLimiter(cfg.Speak.RatePerMinute, cfg.Speak.Burst),
		Logger:      logger,
	})

	dg.AddHandler(handlers.NewSlashHandler(dg, cmds, logger).Handle)
	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		logger.Info("Logged in",
			logging.String("user", r.User.Username),
			logging.Int("guilds", len(r.Guilds)),
		)
	})

	if err := dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer dg.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	presence.NewPresenceManager(dg, controller, logger).StartPeriodicUpdates(ctx)

	if cfg.Ping.URL != "" {
		pinger, err := cron.NewPingManagerWithSchedule(cfg.Ping.URL, cfg.Ping.Schedule, logger)
		if err != nil {
			return err
		}
		pinger.Start()
		defer pinger.Stop()
		logger.Info("Ping service scheduled",
			logging.String("schedule", pinger.Schedule()),
			logging.String("next_run", pinger.NextRun().Format(time.RFC3339)),
		)
	} else {
		logger.Debug("No PING_URL configured, skipping ping service")
	}

	if cfg.StatusAddr != "" {
		statusServer := status.NewServer(cfg.StatusAddr, controller, voiceMetrics.Handler(), logger)
		if err := statusServer.Start(); err != nil {
			return fmt.Errorf("failed to start status server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := statusServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Status server shutdown error", logging.Error(err))
			}
		}()
	}

	logger.Info("Bot is running. Press CTRL-C to exit.")
	<-ctx.Done()

	logger.Info("Shutting down gracefully", logging.Int("active_sessions", controller.ActiveSessions()))
	controller.Shutdown()
	return nil
}
