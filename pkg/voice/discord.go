package voice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/Hibiki/pkg/logging"
)

const defaultPollInterval = 100 * time.Millisecond

// FindUserVoiceChannel returns the id of the voice channel the user is in
func FindUserVoiceChannel(s *discordgo.Session, guildID, userID string) (string, error) {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		return "", fmt.Errorf("could not find guild: %w", err)
	}

	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID, nil
		}
	}
	return "", ErrUserNotInVoice
}

// DiscordConnector opens voice connections through a discordgo session
type DiscordConnector struct {
	session      *discordgo.Session
	logger       logging.Logger
	pollInterval time.Duration
	sendTimeout  time.Duration
}

// NewDiscordConnector creates a connector bound to the given session
func NewDiscordConnector(s *discordgo.Session, logger logging.Logger) *DiscordConnector {
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &DiscordConnector{
		session:      s,
		logger:       logger.With(logging.String("component", "discord_connector")),
		pollInterval: defaultPollInterval,
		sendTimeout:  5 * time.Second,
	}
}

type joinResult struct {
	vc  *discordgo.VoiceConnection
	err error
}

// Connect joins the voice channel and returns once discordgo reports the
// connection ready or the handshake fails.
func (d *DiscordConnector) Connect(ctx context.Context, channelID, guildID string) (Connection, error) {
	d.logger.Info("Joining voice channel",
		logging.String("guild_id", guildID),
		logging.String("channel_id", channelID),
	)

	// ChannelVoiceJoin has its own handshake timeout but no context
	resCh := make(chan joinResult, 1)
	go func() {
		vc, err := d.session.ChannelVoiceJoin(guildID, channelID, false, true)
		resCh <- joinResult{vc: vc, err: err}
	}()

	var res joinResult
	select {
	case res = <-resCh:
	case <-ctx.Done():
		go func() {
			if late := <-resCh; late.err == nil && late.vc != nil {
				_ = late.vc.Disconnect()
			}
		}()
		return nil, ctx.Err()
	}
	if res.err != nil {
		return nil, res.err
	}

	conn := newDiscordConnection(d.session, res.vc, guildID, channelID, d.logger)
	conn.pollInterval = d.pollInterval
	conn.sendTimeout = d.sendTimeout
	conn.start()
	return conn, nil
}

// discordConnection maps discordgo's Ready flag and voice gateway events
// onto the connection status state machine.
type discordConnection struct {
	*statusFeed

	session   *discordgo.Session
	vc        *discordgo.VoiceConnection
	guildID   string
	channelID string
	logger    logging.Logger

	pollInterval time.Duration
	sendTimeout  time.Duration

	// lastReady is the Ready value seen by the previous poll. Recovery from
	// disconnected requires Ready to go false then true again.
	readyMu   sync.Mutex
	lastReady bool

	removeHandlers []func()
	done           chan struct{}
	destroyOnce    sync.Once
}

func newDiscordConnection(s *discordgo.Session, vc *discordgo.VoiceConnection, guildID, channelID string, logger logging.Logger) *discordConnection {
	logger = logger.With(logging.String("guild_id", guildID))
	return &discordConnection{
		statusFeed:   newStatusFeed(StatusSignalling, logger),
		session:      s,
		vc:           vc,
		guildID:      guildID,
		channelID:    channelID,
		logger:       logger,
		pollInterval: defaultPollInterval,
		sendTimeout:  5 * time.Second,
		done:         make(chan struct{}),
	}
}

func (c *discordConnection) start() {
	c.removeHandlers = append(c.removeHandlers,
		c.session.AddHandler(c.onVoiceServerUpdate),
		c.session.AddHandler(c.onVoiceStateUpdate),
	)
	c.syncReady()
	go c.monitor()
}

func (c *discordConnection) GuildID() string   { return c.guildID }
func (c *discordConnection) ChannelID() string { return c.channelID }

func (c *discordConnection) isReady() bool {
	c.vc.RLock()
	defer c.vc.RUnlock()
	return c.vc.Ready
}

func (c *discordConnection) monitor() {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.syncReady()
		}
	}
}

func (c *discordConnection) syncReady() {
	ready := c.isReady()
	c.readyMu.Lock()
	rose := ready && !c.lastReady
	c.lastReady = ready
	c.readyMu.Unlock()

	switch current := c.Status(); {
	case ready && current == StatusSignalling:
		c.transition(StatusConnecting)
		c.transition(StatusReady)
	// After a kick discordgo keeps Ready set until it closes the socket, so a
	// Ready flag that never dropped is not a recovery.
	case rose && current == StatusDisconnected:
		c.transition(StatusConnecting)
		c.transition(StatusReady)
	case ready && current == StatusConnecting:
		c.transition(StatusReady)
	case !ready && current == StatusReady:
		c.logger.Warn("Voice connection lost readiness")
		c.transition(StatusDisconnected)
	}
}

// A voice server update while disconnected means the gateway is moving us
// to a new voice server.
func (c *discordConnection) onVoiceServerUpdate(_ *discordgo.Session, e *discordgo.VoiceServerUpdate) {
	if e.GuildID != c.guildID {
		return
	}
	if c.Status() == StatusDisconnected {
		c.logger.Info("Voice server update received, re-signalling",
			logging.String("endpoint", e.Endpoint),
		)
		c.transition(StatusSignalling)
	}
}

// The bot's own voice state with an empty channel means it was removed
// from the channel.
func (c *discordConnection) onVoiceStateUpdate(s *discordgo.Session, e *discordgo.VoiceStateUpdate) {
	if e.VoiceState == nil || e.GuildID != c.guildID {
		return
	}
	if s.State == nil || s.State.User == nil || e.UserID != s.State.User.ID {
		return
	}
	if e.ChannelID == "" {
		c.logger.Warn("Bot was removed from the voice channel")
		c.transition(StatusDisconnected)
	}
}

func (c *discordConnection) SendFrame(ctx context.Context, frame []byte) error {
	c.vc.RLock()
	send := c.vc.OpusSend
	c.vc.RUnlock()
	if send == nil {
		return ErrConnectionDestroyed
	}

	timer := time.NewTimer(c.sendTimeout)
	defer timer.Stop()

	select {
	case send <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrConnectionDestroyed
	case <-timer.C:
		return ErrFrameSendTimeout
	}
}

func (c *discordConnection) Speaking(speaking bool) error {
	select {
	case <-c.done:
		return ErrConnectionDestroyed
	default:
	}
	return c.vc.Speaking(speaking)
}

func (c *discordConnection) Destroy() error {
	var err error
	c.destroyOnce.Do(func() {
		close(c.done)
		for _, remove := range c.removeHandlers {
			remove()
		}
		err = c.vc.Disconnect()
		c.transition(StatusDestroyed)
		c.logger.Info("Voice connection destroyed")
	})
	return err
}
