package ffprobe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	langpkg "dubsync/internal/language"
	"dubsync/internal/mediaerr"
	"dubsync/internal/session"
)

// Result represents the parsed output from an ffprobe inspection.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
	raw     []byte
}

// Stream describes a single stream in the media container.
type Stream struct {
	Index      int               `json:"index"`
	CodecName  string            `json:"codec_name"`
	CodecType  string            `json:"codec_type"`
	Duration   string            `json:"duration"`
	BitRate    string            `json:"bit_rate"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	FrameRate  string            `json:"r_frame_rate"`
	SampleRate string            `json:"sample_rate"`
	Channels   int               `json:"channels"`
	Tags       map[string]string `json:"tags"`
}

// Format captures container-level metadata extracted by ffprobe.
type Format struct {
	Filename   string `json:"filename"`
	NBStreams  int    `json:"nb_streams"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// Inspect executes ffprobe against the provided path and decodes the JSON response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(output)))
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	result.raw = append([]byte(nil), output...)
	return result, nil
}

// Metadata is what playback and export need to know about a source.
type Metadata struct {
	Path       string
	Duration   float64
	HasVideo   bool
	HasAudio   bool
	Width      int
	Height     int
	FrameRate  float64
	SampleRate int
	Channels   int
	// AudioLanguage is the ISO 639-1 code tagged on the first audio stream.
	AudioLanguage string
	FormatName    string
	MIMEType      string
}

// Probe inspects src and validates that it carries the expected track. Any
// failure is reported as a *mediaerr.SourceLoadError.
func Probe(ctx context.Context, binary string, src session.Source, track mediaerr.Track) (Metadata, error) {
	fail := func(err error) (Metadata, error) {
		return Metadata{}, &mediaerr.SourceLoadError{Track: track, Source: src.Path, Err: err}
	}

	result, err := Inspect(ctx, binary, src.Path)
	if err != nil {
		return fail(err)
	}
	meta := result.Metadata()
	meta.Path = src.Path
	if src.MIMEType != "" {
		meta.MIMEType = src.MIMEType
	}

	switch track {
	case mediaerr.TrackVideo:
		if !meta.HasVideo {
			return fail(errors.New("no video stream"))
		}
	case mediaerr.TrackAudio:
		if !meta.HasAudio {
			return fail(errors.New("no audio stream"))
		}
	}
	if math.IsNaN(meta.Duration) || meta.Duration <= 0 {
		return fail(errors.New("duration unavailable"))
	}
	return meta, nil
}

// Metadata summarizes the result. Duration falls back to the longest stream
// when the container does not report one.
func (r Result) Metadata() Metadata {
	meta := Metadata{
		Duration:   r.DurationSeconds(),
		FormatName: r.Format.FormatName,
		MIMEType:   mimeForFormat(r.Format.FormatName, r.VideoStreamCount() > 0),
	}
	for _, stream := range r.Streams {
		switch strings.ToLower(stream.CodecType) {
		case "video":
			if meta.HasVideo {
				continue
			}
			meta.HasVideo = true
			meta.Width = stream.Width
			meta.Height = stream.Height
			meta.FrameRate = parseRational(stream.FrameRate)
		case "audio":
			if meta.HasAudio {
				continue
			}
			meta.HasAudio = true
			meta.Channels = stream.Channels
			meta.AudioLanguage = langpkg.ToISO2(langpkg.ExtractFromTags(stream.Tags))
			if rate := parseFloat(stream.SampleRate); !math.IsNaN(rate) {
				meta.SampleRate = int(rate)
			}
		}
	}
	if meta.Duration <= 0 || math.IsNaN(meta.Duration) {
		longest := 0.0
		for _, stream := range r.Streams {
			if d := parseFloat(stream.Duration); !math.IsNaN(d) && d > longest {
				longest = d
			}
		}
		if longest > 0 {
			meta.Duration = longest
		}
	}
	return meta
}

// RawJSON returns the raw ffprobe JSON payload.
func (r Result) RawJSON() []byte {
	return append([]byte(nil), r.raw...)
}

// VideoStreamCount returns the number of video streams discovered.
func (r Result) VideoStreamCount() int {
	return r.countStreams("video")
}

// AudioStreamCount returns the number of audio streams discovered.
func (r Result) AudioStreamCount() int {
	return r.countStreams("audio")
}

func (r Result) countStreams(kind string) int {
	count := 0
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, kind) {
			count++
		}
	}
	return count
}

// DurationSeconds returns the container duration in seconds, or 0 when unavailable.
func (r Result) DurationSeconds() float64 {
	return parseFloat(r.Format.Duration)
}

// SizeBytes returns the reported container size in bytes, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if math.IsNaN(size) || size < 0 {
		return 0
	}
	return int64(size)
}

func mimeForFormat(formatName string, video bool) string {
	names := strings.Split(strings.ToLower(formatName), ",")
	for _, name := range names {
		switch strings.TrimSpace(name) {
		case "mp4", "mov":
			return "video/mp4"
		case "matroska", "webm":
			if video {
				return "video/webm"
			}
			return "audio/webm"
		case "wav":
			return "audio/wav"
		case "mp3":
			return "audio/mpeg"
		case "ogg":
			return "audio/ogg"
		}
	}
	return ""
}

func parseRational(value string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(value), "/")
	if !ok {
		f := parseFloat(num)
		if math.IsNaN(f) {
			return 0
		}
		return f
	}
	n, d := parseFloat(num), parseFloat(den)
	if math.IsNaN(n) || math.IsNaN(d) || d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
