package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"layeh.com/gopus"
)

const feedDrainTimeout = 2 * time.Second

// Source produces opus frames for a Player
type Source interface {
	Open(ctx context.Context) (FrameReader, error)
}

// FrameReader yields encoded opus frames until io.EOF
type FrameReader interface {
	ReadFrame() ([]byte, error)
	Close() error
}

// EncoderConfig contains configuration for transcoding to opus
type EncoderConfig struct {
	FFmpegPath string
	SampleRate int
	Channels   int
	FrameSize  int
	Bitrate    int
}

// DefaultEncoderConfig returns the settings Discord expects: 48kHz stereo,
// 20ms frames.
func DefaultEncoderConfig() EncoderConfig {
	return EncoderConfig{
		FFmpegPath: "ffmpeg",
		SampleRate: 48000,
		Channels:   2,
		FrameSize:  960,
		Bitrate:    64000,
	}
}

// Resource is an arbitrary encoded audio stream (mp3, ogg, wav...) that is
// decoded by ffmpeg and re-encoded to opus when played.
type Resource struct {
	input io.Reader
	cfg   EncoderConfig
}

// NewResource wraps the byte stream as a playable source
func NewResource(input io.Reader, cfg EncoderConfig) *Resource {
	return &Resource{input: input, cfg: cfg}
}

// Open starts ffmpeg and the opus encoder
func (r *Resource) Open(ctx context.Context) (FrameReader, error) {
	encoder, err := gopus.NewEncoder(r.cfg.SampleRate, r.cfg.Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	encoder.SetBitrate(r.cfg.Bitrate)

	cmd := exec.CommandContext(ctx, r.cfg.FFmpegPath,
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(r.cfg.SampleRate),
		"-ac", strconv.Itoa(r.cfg.Channels),
		"pipe:1")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr := &tailBuffer{max: 2048}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	fr := &ffmpegReader{
		cmd:     cmd,
		stdout:  stdout,
		stderr:  stderr,
		encoder: encoder,
		input:   &readRecorder{r: r.input},
		pcm:     make([]byte, r.cfg.FrameSize*r.cfg.Channels*2),
		cfg:     r.cfg,
		fed:     make(chan struct{}),
	}
	go fr.feed(stdin)
	return fr, nil
}

type ffmpegReader struct {
	cmd     *exec.Cmd
	stdout  io.Reader
	stderr  *tailBuffer
	encoder *gopus.Encoder
	input   *readRecorder
	pcm     []byte
	cfg     EncoderConfig
	fed     chan struct{}
	eof     bool

	waitOnce sync.Once
	waitErr  error
}

func (f *ffmpegReader) feed(stdin io.WriteCloser) {
	defer close(f.fed)
	// Write errors only mean ffmpeg went away; read errors are kept by the recorder.
	_, _ = io.Copy(stdin, f.input)
	_ = stdin.Close()
}

func (f *ffmpegReader) ReadFrame() ([]byte, error) {
	if f.eof {
		return nil, f.finish()
	}

	n, err := io.ReadFull(f.stdout, f.pcm)
	switch {
	case err == io.EOF:
		f.eof = true
		return nil, f.finish()
	case err == io.ErrUnexpectedEOF:
		// Pad the trailing partial frame with silence
		for i := n; i < len(f.pcm); i++ {
			f.pcm[i] = 0
		}
		f.eof = true
	case err != nil:
		return nil, &VoiceConnectionError{Err: fmt.Errorf("error reading PCM data: %w", err)}
	}

	samples := bytesToInt16(f.pcm)
	frame, err := f.encoder.Encode(samples, f.cfg.FrameSize, len(f.pcm))
	if err != nil {
		return nil, &VoiceConnectionError{Err: fmt.Errorf("opus encoding error: %w", err)}
	}
	return frame, nil
}

// finish reports why the stream ended: the input's own read error is
// returned unchanged, then an ffmpeg failure, otherwise io.EOF.
func (f *ffmpegReader) finish() error {
	select {
	case <-f.fed:
	case <-time.After(feedDrainTimeout):
	}
	if err := f.input.Err(); err != nil {
		return err
	}
	if err := f.wait(); err != nil {
		msg := strings.TrimSpace(f.stderr.String())
		if msg != "" {
			return &VoiceConnectionError{Err: fmt.Errorf("ffmpeg failed: %w: %s", err, msg)}
		}
		return &VoiceConnectionError{Err: fmt.Errorf("ffmpeg failed: %w", err)}
	}
	return io.EOF
}

func (f *ffmpegReader) wait() error {
	f.waitOnce.Do(func() {
		f.waitErr = f.cmd.Wait()
	})
	return f.waitErr
}

func (f *ffmpegReader) Close() error {
	if f.cmd.Process != nil {
		_ = f.cmd.Process.Kill()
	}
	err := f.wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// killed on purpose
		return nil
	}
	return err
}

// readRecorder remembers the first non-EOF error returned by the wrapped reader
type readRecorder struct {
	r   io.Reader
	mu  sync.Mutex
	err error
}

func (rr *readRecorder) Read(p []byte) (int, error) {
	n, err := rr.r.Read(p)
	if err != nil && err != io.EOF {
		rr.mu.Lock()
		if rr.err == nil {
			rr.err = err
		}
		rr.mu.Unlock()
	}
	return n, err
}

func (rr *readRecorder) Err() error {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return rr.err
}

// tailBuffer keeps the last max bytes written to it
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

func bytesToInt16(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return samples
}
