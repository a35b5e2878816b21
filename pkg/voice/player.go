package voice

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/latoulicious/Hibiki/pkg/logging"
)

var errNotSubscribed = errors.New("player is not subscribed to a connection")

// PlayerStatus represents the state of an audio player
type PlayerStatus int

const (
	PlayerIdle PlayerStatus = iota
	PlayerPlaying
)

func (s PlayerStatus) String() string {
	switch s {
	case PlayerIdle:
		return "idle"
	case PlayerPlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// EventType identifies a player lifecycle event
type EventType int

const (
	EventPlaying EventType = iota
	EventIdle
	EventError
)

func (t EventType) String() string {
	switch t {
	case EventPlaying:
		return "playing"
	case EventIdle:
		return "idle"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// PlayerEvent is delivered to listeners registered with Player.On
type PlayerEvent struct {
	Type       EventType
	PlaybackID uint64
	Err        error
}

// Playback is the one-time result of a Play call. It settles exactly once:
// the first terminal outcome wins and later attempts are no-ops.
type Playback struct {
	id        uint64
	startedAt time.Time
	done      chan struct{}
	once      sync.Once
	err       error
}

func newPlayback(id uint64) *Playback {
	return &Playback{id: id, startedAt: time.Now(), done: make(chan struct{})}
}

// ID returns the player-local identifier of this playback
func (pb *Playback) ID() uint64 { return pb.id }

// Done is closed once the playback has settled
func (pb *Playback) Done() <-chan struct{} { return pb.done }

// Err returns the outcome; only meaningful after Done is closed
func (pb *Playback) Err() error {
	select {
	case <-pb.done:
		return pb.err
	default:
		return nil
	}
}

// Elapsed returns how long the playback has been running
func (pb *Playback) Elapsed() time.Duration { return time.Since(pb.startedAt) }

// Wait blocks until the playback settles or ctx is done
func (pb *Playback) Wait(ctx context.Context) error {
	select {
	case <-pb.done:
		return pb.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (pb *Playback) settle(err error) bool {
	settled := false
	pb.once.Do(func() {
		pb.err = err
		close(pb.done)
		settled = true
	})
	return settled
}

type activePlayback struct {
	pb     *Playback
	cancel context.CancelFunc
}

// Player drives one Source at a time into a subscribed FrameSink
type Player struct {
	guildID string
	logger  logging.Logger

	mu        sync.Mutex
	sink      FrameSink
	current   *activePlayback
	listeners map[int]func(PlayerEvent)
	nextLis   int
	nextID    uint64
	closed    bool
}

// NewPlayer creates an idle player for the given guild
func NewPlayer(guildID string, logger logging.Logger) *Player {
	if logger == nil {
		logger = logging.NullLogger()
	}
	return &Player{
		guildID:   guildID,
		logger:    logger.With(logging.String("component", "audio_player"), logging.String("guild_id", guildID)),
		listeners: make(map[int]func(PlayerEvent)),
	}
}

// Subscribe routes the player's output to the sink
func (p *Player) Subscribe(sink FrameSink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = sink
}

// On registers a listener for player events and returns a function that
// removes it.
func (p *Player) On(fn func(PlayerEvent)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextLis
	p.nextLis++
	p.listeners[id] = fn

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

// Status returns whether a source is currently being played
func (p *Player) Status() PlayerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		return PlayerPlaying
	}
	return PlayerIdle
}

// Play starts the source, replacing whatever is playing. The replaced
// playback settles with ErrPlaybackInterrupted.
func (p *Player) Play(src Source) *Playback {
	p.mu.Lock()
	p.nextID++
	pb := newPlayback(p.nextID)

	if p.closed {
		p.mu.Unlock()
		pb.settle(newVoiceError(p.guildID, ErrSessionClosed))
		return pb
	}

	prev := p.current
	ctx, cancel := context.WithCancel(context.Background())
	ap := &activePlayback{pb: pb, cancel: cancel}
	p.current = ap
	sink := p.sink
	p.mu.Unlock()

	if prev != nil {
		prev.cancel()
		prev.pb.settle(newVoiceError(p.guildID, ErrPlaybackInterrupted))
		p.logger.Debug("Replaced current source", logging.Int64("replaced_playback", int64(prev.pb.id)))
	}

	p.emit(PlayerEvent{Type: EventPlaying, PlaybackID: pb.id})
	go p.run(ctx, ap, src, sink)
	return pb
}

// Stop ends the current playback, if any, and emits idle
func (p *Player) Stop() bool {
	p.mu.Lock()
	ap := p.current
	p.current = nil
	p.mu.Unlock()

	if ap == nil {
		return false
	}
	ap.cancel()
	if ap.pb.settle(newVoiceError(p.guildID, ErrPlaybackInterrupted)) {
		p.emit(PlayerEvent{Type: EventIdle, PlaybackID: ap.pb.id})
	}
	return true
}

// cancel settles pb with err and stops it if it is still the current
// playback. It is a no-op for a playback that already settled.
func (p *Player) cancel(pb *Playback, err error) {
	p.mu.Lock()
	ap := p.current
	isCurrent := ap != nil && ap.pb == pb
	if isCurrent {
		p.current = nil
	}
	p.mu.Unlock()

	if !isCurrent {
		pb.settle(err)
		return
	}
	ap.cancel()
	if pb.settle(err) {
		p.emit(PlayerEvent{Type: EventIdle, PlaybackID: pb.id})
	}
}

// Close tears the player down. A pending playback settles with
// ErrSessionClosed and no further events are emitted.
func (p *Player) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	ap := p.current
	p.current = nil
	p.listeners = make(map[int]func(PlayerEvent))
	p.mu.Unlock()

	if ap != nil {
		ap.cancel()
		ap.pb.settle(newVoiceError(p.guildID, ErrSessionClosed))
	}
}

func (p *Player) run(ctx context.Context, ap *activePlayback, src Source, sink FrameSink) {
	if sink == nil {
		p.terminal(ap, newVoiceError(p.guildID, errNotSubscribed))
		return
	}

	reader, err := src.Open(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.terminal(ap, newVoiceError(p.guildID, err))
		}
		return
	}
	defer reader.Close()

	if err := sink.Speaking(true); err != nil {
		p.logger.Warn("Failed to set speaking state", logging.Error(err))
	}
	defer func() {
		if err := sink.Speaking(false); err != nil {
			p.logger.Debug("Failed to clear speaking state", logging.Error(err))
		}
	}()

	frames := 0
	for {
		frame, err := reader.ReadFrame()
		if ctx.Err() != nil {
			return
		}
		if err == io.EOF {
			p.logger.Debug("Source exhausted", logging.Int("frames", frames))
			p.terminal(ap, nil)
			return
		}
		if err != nil {
			// Source errors are reported as-is, encoder errors get the guild
			var vErr *VoiceConnectionError
			if errors.As(err, &vErr) && vErr.GuildID == "" {
				vErr.GuildID = p.guildID
			}
			p.terminal(ap, err)
			return
		}

		if err := sink.SendFrame(ctx, frame); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.terminal(ap, newVoiceError(p.guildID, err))
			return
		}
		frames++
	}
}

// terminal settles the playback with the first outcome it sees and emits
// error (when err is non-nil) followed by idle. Later calls for the same
// playback are ignored.
func (p *Player) terminal(ap *activePlayback, err error) {
	p.mu.Lock()
	isCurrent := p.current == ap
	if isCurrent {
		p.current = nil
	}
	p.mu.Unlock()

	ap.cancel()
	if !ap.pb.settle(err) || !isCurrent {
		return
	}

	if err != nil {
		p.logger.Error("Audio player error", logging.Error(err))
		p.emit(PlayerEvent{Type: EventError, PlaybackID: ap.pb.id, Err: err})
	}
	p.emit(PlayerEvent{Type: EventIdle, PlaybackID: ap.pb.id})
}

func (p *Player) emit(ev PlayerEvent) {
	p.mu.Lock()
	fns := make([]func(PlayerEvent), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}
