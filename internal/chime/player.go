// ABOUTME: Oto-backed chime player
// ABOUTME: Plays a prepared PCM buffer through the process-wide oto context
package chime

import (
	"bytes"
	"context"
	"fmt"
	"os"
	gosync "sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"go.uber.org/zap"
)

// Player plays the chime once.
type Player interface {
	Play(ctx context.Context) error
}

// oto allows one context per process, so every Oto shares it.
var (
	otoOnce gosync.Once
	otoCtx  *oto.Context
	otoErr  error
	otoRate int
)

const playPoll = 10 * time.Millisecond

func sharedContext(sampleRate int) (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: Channels,
			Format:       oto.FormatSignedInt16LE,
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		otoCtx = ctx
		otoRate = sampleRate
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoRate != sampleRate {
		return nil, fmt.Errorf("audio output already open at %dHz, chime is %dHz", otoRate, sampleRate)
	}
	return otoCtx, nil
}

// Oto plays a fixed PCM buffer.
type Oto struct {
	pcm        []byte
	sampleRate int
	log        *zap.Logger

	mu      gosync.Mutex
	playing bool
}

// NewTone creates a player for a generated sine burst.
func NewTone(frequency float64, length time.Duration, volume int, log *zap.Logger) *Oto {
	pcm := Tone(frequency, length, DefaultSampleRate)
	scaleVolume(pcm, volume)
	return newOto(pcm, DefaultSampleRate, log)
}

// NewMP3File creates a player for an MP3 file decoded up front.
func NewMP3File(path string, volume int, log *zap.Logger) (*Oto, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chime: %w", err)
	}
	defer f.Close()

	pcm, rate, err := DecodeMP3(f)
	if err != nil {
		return nil, fmt.Errorf("chime %s: %w", path, err)
	}
	scaleVolume(pcm, volume)
	return newOto(pcm, rate, log), nil
}

func newOto(pcm []byte, sampleRate int, log *zap.Logger) *Oto {
	if log == nil {
		log = zap.NewNop()
	}
	return &Oto{pcm: pcm, sampleRate: sampleRate, log: log}
}

// Duration is the length of the prepared sound.
func (o *Oto) Duration() time.Duration {
	frames := len(o.pcm) / bytesPerFrame
	return time.Duration(frames) * time.Second / time.Duration(o.sampleRate)
}

// Play blocks until the sound finishes or ctx is done. A chime that is
// still playing is not restarted.
func (o *Oto) Play(ctx context.Context) error {
	o.mu.Lock()
	if o.playing {
		o.mu.Unlock()
		return nil
	}
	o.playing = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.playing = false
		o.mu.Unlock()
	}()

	c, err := sharedContext(o.sampleRate)
	if err != nil {
		return err
	}

	p := c.NewPlayer(bytes.NewReader(o.pcm))
	defer p.Close()
	p.Play()
	o.log.Debug("chime playing", zap.Duration("length", o.Duration()))

	ticker := time.NewTicker(playPoll)
	defer ticker.Stop()
	for p.IsPlaying() {
		select {
		case <-ctx.Done():
			p.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
