package voice

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

type fakeConn struct {
	*statusFeed
	guildID   string
	channelID string

	mu        sync.Mutex
	frames    [][]byte
	speaking  []bool
	destroyed int
	sendErr   error
}

func newFakeConn(guildID, channelID string) *fakeConn {
	return &fakeConn{
		statusFeed: newStatusFeed(StatusReady, nil),
		guildID:    guildID,
		channelID:  channelID,
	}
}

func (c *fakeConn) GuildID() string   { return c.guildID }
func (c *fakeConn) ChannelID() string { return c.channelID }

func (c *fakeConn) SendFrame(ctx context.Context, frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.frames = append(c.frames, frame)
	return nil
}

func (c *fakeConn) Speaking(speaking bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speaking = append(c.speaking, speaking)
	return nil
}

func (c *fakeConn) Destroy() error {
	c.mu.Lock()
	c.destroyed++
	c.mu.Unlock()
	c.transition(StatusDestroyed)
	return nil
}

func (c *fakeConn) frameCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

func (c *fakeConn) destroyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

// fakeConnector hands out a new fakeConn per call
type fakeConnector struct {
	calls atomic.Int32
	delay time.Duration
	err   error

	mu    sync.Mutex
	conns []*fakeConn
}

func (f *fakeConnector) Connect(ctx context.Context, channelID, guildID string) (Connection, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	conn := newFakeConn(guildID, channelID)
	f.mu.Lock()
	f.conns = append(f.conns, conn)
	f.mu.Unlock()
	return conn, nil
}

func (f *fakeConnector) last() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

// fakeSource yields its frames, then either blocks until released, returns
// err, or reports io.EOF. It doubles as the io.Reader handed to PlayAudio.
type fakeSource struct {
	frames  [][]byte
	err     error
	openErr error
	block   chan struct{}
}

func (s *fakeSource) Read([]byte) (int, error) { return 0, io.EOF }

func (s *fakeSource) Open(ctx context.Context) (FrameReader, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	return &fakeReader{src: s, ctx: ctx}, nil
}

type fakeReader struct {
	src *fakeSource
	ctx context.Context
	i   int
}

func (r *fakeReader) ReadFrame() ([]byte, error) {
	if r.i < len(r.src.frames) {
		r.i++
		return r.src.frames[r.i-1], nil
	}
	if r.src.block != nil {
		select {
		case <-r.src.block:
		case <-r.ctx.Done():
			return nil, r.ctx.Err()
		}
	}
	if r.src.err != nil {
		return nil, r.src.err
	}
	return nil, io.EOF
}

func (r *fakeReader) Close() error { return nil }

func frames(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte{byte(i)}
	}
	return out
}

func sourceFromReader(r io.Reader) Source {
	return r.(*fakeSource)
}

type recordingMetrics struct {
	mu         sync.Mutex
	opened     int
	closed     []string
	outcomes   []string
	reconnects []bool
}

func (m *recordingMetrics) SessionOpened(string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opened++
}

func (m *recordingMetrics) SessionClosed(_ string, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = append(m.closed, reason)
}

func (m *recordingMetrics) PlaybackFinished(_ string, outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) ReconnectAttempt(_ string, recovered bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnects = append(m.reconnects, recovered)
}

func (m *recordingMetrics) closedReasons() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.closed...)
}
