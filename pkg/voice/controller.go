package voice

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/latoulicious/Hibiki/pkg/logging"
)

// Config contains configuration for the session controller
type Config struct {
	// ReconnectTimeout is how long a disconnected connection has to start
	// signalling or connecting again before the session is torn down.
	ReconnectTimeout time.Duration
	// PlayTimeout bounds PlayAudio; zero means no limit.
	PlayTimeout time.Duration
	Encoder     EncoderConfig
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		ReconnectTimeout: 5 * time.Second,
		PlayTimeout:      5 * time.Minute,
		Encoder:          DefaultEncoderConfig(),
	}
}

// Option configures a Controller
type Option func(*Controller)

// WithConfig overrides the default configuration
func WithConfig(cfg Config) Option {
	return func(c *Controller) { c.cfg = cfg }
}

// WithLogger sets the controller's logger
func WithLogger(logger logging.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithMetrics sets the metrics sink
func WithMetrics(m Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithRegistry makes the controller use an existing registry
func WithRegistry(r *Registry) Option {
	return func(c *Controller) { c.registry = r }
}

// WithSourceFactory replaces how PlayAudio turns a byte stream into a Source
func WithSourceFactory(fn func(io.Reader) Source) Option {
	return func(c *Controller) { c.newSource = fn }
}

// Controller owns the per-guild voice sessions: it joins, plays, leaves and
// recovers from involuntary disconnects. Operations on one guild are
// serialized; different guilds never share a lock.
type Controller struct {
	registry  *Registry
	locks     *guildLocks
	cfg       Config
	logger    logging.Logger
	metrics   Metrics
	newSource func(io.Reader) Source
}

// NewController creates a controller with its own registry
func NewController(opts ...Option) *Controller {
	c := &Controller{
		cfg:     DefaultConfig(),
		locks:   newGuildLocks(),
		logger:  logging.NullLogger(),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = NewRegistry()
	}
	if c.newSource == nil {
		enc := c.cfg.Encoder
		c.newSource = func(r io.Reader) Source { return NewResource(r, enc) }
	}
	c.logger = c.logger.With(logging.String("component", "voice_controller"))
	return c
}

// Join connects to the voice channel. If the guild already has a session
// its connection is returned unchanged. Transport errors are returned as-is.
func (c *Controller) Join(ctx context.Context, channelID, guildID string, connector Connector) (Connection, error) {
	unlock := c.locks.lock(guildID)
	defer unlock()

	logger := c.logger.With(logging.String("guild_id", guildID), logging.String("channel_id", channelID))

	if sess, ok := c.registry.Get(guildID); ok {
		logger.Info("Already connected to voice channel")
		return sess.conn, nil
	}

	logger.Info("Joining voice channel")
	conn, err := connector.Connect(ctx, channelID, guildID)
	if err != nil {
		logger.Error("Failed to join voice channel", logging.Error(err))
		return nil, err
	}

	player := NewPlayer(guildID, c.logger)
	player.Subscribe(conn)

	sess := newGuildSession(guildID, conn, player)
	player.On(func(ev PlayerEvent) { c.onPlayerEvent(sess, ev) })

	statuses, cancel := conn.Statuses()
	c.registry.Put(guildID, sess)
	go c.watch(sess, statuses, cancel)

	c.metrics.SessionOpened(guildID)
	logger.Info("Successfully joined voice channel")
	return conn, nil
}

// IsConnected reports whether the guild has a session
func (c *Controller) IsConnected(guildID string) bool {
	return c.registry.Contains(guildID)
}

// Session returns the guild's session, if any
func (c *Controller) Session(guildID string) (*GuildSession, bool) {
	return c.registry.Get(guildID)
}

// ActiveSessions returns the number of guilds with a session
func (c *Controller) ActiveSessions() int {
	return c.registry.Len()
}

// PlayAudio plays the byte stream into the guild's session and waits until
// playback ends. It settles exactly once: nil when the source is exhausted,
// the source's own error unchanged if reading it fails, or a
// *VoiceConnectionError for missing sessions, player failures, teardown
// while waiting and the play timeout.
func (c *Controller) PlayAudio(ctx context.Context, guildID string, audio io.Reader) error {
	playID := uuid.NewString()
	logger := c.logger.With(logging.String("guild_id", guildID), logging.String("play_id", playID))

	unlock := c.locks.lock(guildID)
	sess, ok := c.registry.Get(guildID)
	if !ok {
		unlock()
		return newVoiceError(guildID, ErrNoSession)
	}

	logger.Info("Playing audio")
	sess.mu.Lock()
	sess.playing = true
	pb := sess.player.Play(c.newSource(audio))
	sess.mu.Unlock()
	unlock()

	waitCtx := ctx
	if c.cfg.PlayTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, c.cfg.PlayTimeout)
		defer cancel()
	}

	err := pb.Wait(waitCtx)
	if waitErr := waitCtx.Err(); waitErr != nil && err == waitErr {
		cause := error(newVoiceError(guildID, ErrPlaybackTimeout))
		if ctx.Err() != nil {
			cause = ctx.Err()
		}
		sess.player.cancel(pb, cause)
		err = pb.Err()
	}

	c.metrics.PlaybackFinished(guildID, outcomeOf(err), pb.Elapsed())
	if err != nil {
		logger.Error("Audio playback error", logging.Error(err))
		return err
	}
	logger.Info("Audio playback completed", logging.Duration("elapsed", pb.Elapsed()))
	return nil
}

// Disconnect leaves the guild's voice channel. It is a no-op if there is no
// session. A caller waiting in PlayAudio is released with an error.
func (c *Controller) Disconnect(guildID string) {
	unlock := c.locks.lock(guildID)
	defer unlock()

	sess, ok := c.registry.Get(guildID)
	if !ok {
		return
	}
	c.logger.Info("Disconnecting from voice channel", logging.String("guild_id", guildID))
	c.teardown(sess, CloseLeave)
}

// Shutdown disconnects every guild
func (c *Controller) Shutdown() {
	for _, guildID := range c.registry.GuildIDs() {
		unlock := c.locks.lock(guildID)
		if sess, ok := c.registry.Get(guildID); ok {
			c.teardown(sess, CloseShutdown)
		}
		unlock()
	}
}

// teardown must be called with the guild lock held
func (c *Controller) teardown(sess *GuildSession, reason string) {
	c.registry.CompareAndRemove(sess.guildID, sess)
	sess.close()
	sess.player.Close()
	sess.setPlaying(false)

	if err := sess.conn.Destroy(); err != nil {
		c.logger.Warn("Error destroying voice connection",
			logging.String("guild_id", sess.guildID),
			logging.Error(err),
		)
	}

	c.metrics.SessionClosed(sess.guildID, reason)
	c.logger.Info("Cleaned up voice connection",
		logging.String("guild_id", sess.guildID),
		logging.String("reason", reason),
	)
}

func (c *Controller) onPlayerEvent(sess *GuildSession, ev PlayerEvent) {
	if ev.Type == EventPlaying {
		return
	}
	if cur, ok := c.registry.Get(sess.guildID); !ok || cur != sess {
		return
	}

	sess.mu.Lock()
	if sess.player.Status() == PlayerIdle {
		sess.playing = false
	}
	sess.mu.Unlock()

	if ev.Type == EventIdle {
		c.logger.Debug("Audio playback finished",
			logging.String("guild_id", sess.guildID),
			logging.Int64("playback_id", int64(ev.PlaybackID)),
		)
	}
}

// watch implements disconnect recovery: after a disconnect the connection
// has ReconnectTimeout to enter signalling or connecting, otherwise the
// session is torn down.
func (c *Controller) watch(sess *GuildSession, statuses <-chan Status, cancel func()) {
	defer cancel()

	logger := c.logger.With(logging.String("guild_id", sess.guildID))

	var (
		timer    *time.Timer
		deadline <-chan time.Time
	)
	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer, deadline = nil, nil
		}
	}
	defer stopTimer()

	for {
		select {
		case <-sess.stop:
			return

		case st, ok := <-statuses:
			if !ok {
				return
			}
			switch st {
			case StatusDisconnected:
				if timer == nil {
					logger.Warn("Voice connection disconnected", logging.Duration("reconnect_timeout", c.cfg.ReconnectTimeout))
					timer = time.NewTimer(c.cfg.ReconnectTimeout)
					deadline = timer.C
				}
			case StatusSignalling, StatusConnecting:
				if timer != nil {
					logger.Info("Voice connection recovering", logging.String("status", st.String()))
					stopTimer()
					c.metrics.ReconnectAttempt(sess.guildID, true)
				}
			case StatusDestroyed:
				logger.Warn("Voice connection destroyed out of band")
				c.handleLost(sess, CloseDestroyed)
				return
			}

		case <-deadline:
			logger.Error("Failed to reconnect")
			c.metrics.ReconnectAttempt(sess.guildID, false)
			c.handleLost(sess, CloseReconnectTimeout)
			return
		}
	}
}

func (c *Controller) handleLost(sess *GuildSession, reason string) {
	unlock := c.locks.lock(sess.guildID)
	defer unlock()

	if cur, ok := c.registry.Get(sess.guildID); !ok || cur != sess {
		return
	}
	c.teardown(sess, reason)
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeCompleted
	case errors.Is(err, ErrPlaybackTimeout):
		return OutcomeTimeout
	case errors.Is(err, ErrPlaybackInterrupted), errors.Is(err, ErrSessionClosed),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeInterrupted
	default:
		return OutcomeFailed
	}
}

// guildLocks hands out one mutex per guild id; entries are dropped when no
// goroutine holds or waits on them.
type guildLocks struct {
	mu    sync.Mutex
	locks map[string]*guildLock
}

type guildLock struct {
	mu   sync.Mutex
	refs int
}

func newGuildLocks() *guildLocks {
	return &guildLocks{locks: make(map[string]*guildLock)}
}

func (g *guildLocks) lock(guildID string) func() {
	g.mu.Lock()
	l, ok := g.locks[guildID]
	if !ok {
		l = &guildLock{}
		g.locks[guildID] = l
	}
	l.refs++
	g.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		g.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(g.locks, guildID)
		}
		g.mu.Unlock()
	}
}
