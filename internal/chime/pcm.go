// ABOUTME: PCM sources for the chime
// ABOUTME: Sine-burst generator and MP3 file decoding to 16-bit stereo PCM
package chime

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

const (
	// DefaultSampleRate is used for generated tones.
	DefaultSampleRate = 44100
	// Channels is fixed at stereo; go-mp3 always decodes to stereo.
	Channels = 2
	// bytesPerFrame is one stereo frame of signed 16-bit samples.
	bytesPerFrame = Channels * 2
)

// Tone renders a sine burst as little-endian 16-bit stereo PCM. The last
// quarter fades linearly to silence so the burst ends without a click.
func Tone(frequency float64, length time.Duration, sampleRate int) []byte {
	frames := int(int64(sampleRate) * int64(length) / int64(time.Second))
	out := make([]byte, frames*bytesPerFrame)
	fadeStart := frames * 3 / 4

	for i := 0; i < frames; i++ {
		t := float64(i) / float64(sampleRate)
		sample := math.Sin(2 * math.Pi * frequency * t)

		gain := 0.5 // 50% volume
		if i >= fadeStart && frames > fadeStart {
			gain *= float64(frames-i) / float64(frames-fadeStart)
		}

		pcmValue := int16(sample * 32767.0 * gain)

		// Stereo (duplicate to both channels)
		binary.LittleEndian.PutUint16(out[i*bytesPerFrame:], uint16(pcmValue))
		binary.LittleEndian.PutUint16(out[i*bytesPerFrame+2:], uint16(pcmValue))
	}

	return out
}

// DecodeMP3 reads a whole MP3 stream into 16-bit stereo PCM.
func DecodeMP3(r io.Reader) (pcm []byte, sampleRate int, err error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	pcm, err = io.ReadAll(decoder)
	if err != nil {
		return nil, 0, fmt.Errorf("mp3 decode error: %w", err)
	}

	return pcm, decoder.SampleRate(), nil
}

// scaleVolume applies a 0-100 volume to 16-bit PCM in place.
func scaleVolume(pcm []byte, volume int) {
	if volume >= 100 {
		return
	}
	if volume < 0 {
		volume = 0
	}
	multiplier := float64(volume) / 100.0
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i:]))
		binary.LittleEndian.PutUint16(pcm[i:], uint16(int16(float64(s)*multiplier)))
	}
}
