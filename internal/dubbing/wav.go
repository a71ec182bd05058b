package dubbing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"dubsync/internal/fileutil"
)

const (
	bitDepth      = 16
	channels      = 1
	wavFormatPCM  = 1
	bytesPerFrame = bitDepth / 8 * channels
)

// PCMToWAV writes little-endian 16-bit mono pcm as a WAV stream.
func PCMToWAV(w io.WriteSeeker, pcm []byte, sampleRate int) error {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if len(pcm)%bytesPerFrame != 0 {
		pcm = pcm[:len(pcm)-len(pcm)%bytesPerFrame]
	}
	if len(pcm) == 0 {
		return errors.New("pcm payload is empty")
	}
	samples := make([]int, len(pcm)/bytesPerFrame)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	enc := wav.NewEncoder(w, sampleRate, bitDepth, channels, wavFormatPCM)
	buf := &audio.IntBuffer{
		Data:           samples,
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: channels},
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finish wav: %w", err)
	}
	return nil
}

// WriteWAVFile writes pcm to path atomically.
func WriteWAVFile(path string, pcm []byte, sampleRate int) error {
	return fileutil.WriteAtomic(path, 0o644, func(f *os.File) error {
		return PCMToWAV(f, pcm, sampleRate)
	})
}

// PCMDuration is the playback length of 16-bit mono pcm at sampleRate.
func PCMDuration(pcm []byte, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	frames := len(pcm) / bytesPerFrame
	return time.Duration(float64(frames) / float64(sampleRate) * float64(time.Second))
}
