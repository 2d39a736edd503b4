// Package audio converts synthesized speech into a voice-message-friendly
// container, falling back to the baseline container when the transcoder is
// unavailable.
package audio

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

// Kind tells the delivery layer which outbound message kind fits an audio
// artifact. It is decided once at encode time.
type Kind int

const (
	// KindVoice is OGG/Opus, suitable for a voice-message bubble.
	KindVoice Kind = iota
	// KindAudio is the baseline container (WAV or MP3), delivered as a
	// generic audio attachment.
	KindAudio
)

func (k Kind) String() string {
	if k == KindVoice {
		return "voice"
	}
	return "audio"
}

// Artifact is an encoded audio payload ready for delivery.
type Artifact struct {
	Data     []byte
	Kind     Kind
	MimeType string
}

// Encoder transcodes baseline audio to OGG/Opus via an external ffmpeg
// binary. A missing binary or a failed invocation is an expected condition,
// not an error: the baseline audio is delivered unmodified.
type Encoder struct {
	ffmpegPath string
	bitrate    string
}

// NewEncoder creates an encoder using the given ffmpeg binary (bare names
// are resolved on PATH) and opus bitrate (e.g. "64k").
func NewEncoder(ffmpegPath, bitrate string) *Encoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if bitrate == "" {
		bitrate = "64k"
	}
	return &Encoder{ffmpegPath: ffmpegPath, bitrate: bitrate}
}

// Available reports whether the transcoder binary can be resolved.
func (e *Encoder) Available() bool {
	_, err := exec.LookPath(e.ffmpegPath)
	return err == nil
}

// EncodeVoice transcodes baseline audio (WAV/MP3) into OGG/Opus for a voice
// message. On any failure the baseline bytes come back unchanged with
// KindAudio; the degradation is silent and non-fatal.
func (e *Encoder) EncodeVoice(ctx context.Context, baseline []byte, baselineMime string) *Artifact {
	fallback := &Artifact{Data: baseline, Kind: KindAudio, MimeType: baselineMime}

	if !e.Available() {
		log.Info().Str("ffmpeg", e.ffmpegPath).Msg("Transcoder not found, keeping baseline audio")
		return fallback
	}

	workDir, err := os.MkdirTemp("", "talebot_voice_")
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create transcode work dir, keeping baseline audio")
		return fallback
	}
	defer os.RemoveAll(workDir)

	inPath := filepath.Join(workDir, "voice"+extensionForMime(baselineMime))
	outPath := filepath.Join(workDir, "voice.ogg")

	if err := os.WriteFile(inPath, baseline, 0o600); err != nil {
		log.Warn().Err(err).Msg("Failed to write transcode input, keeping baseline audio")
		return fallback
	}

	cmd := exec.CommandContext(ctx, e.ffmpegPath,
		"-y", "-i", inPath,
		"-acodec", "libopus", "-b:a", e.bitrate,
		"-vn", outPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		log.Warn().Err(err).
			Str("ffmpeg_output", string(out)).
			Msg("Transcode failed, keeping baseline audio")
		return fallback
	}

	encoded, err := os.ReadFile(outPath)
	if err != nil || len(encoded) == 0 {
		log.Warn().Err(err).Msg("Transcode produced no output, keeping baseline audio")
		return fallback
	}

	log.Info().
		Int("baseline_bytes", len(baseline)).
		Int("voice_bytes", len(encoded)).
		Str("bitrate", e.bitrate).
		Msg("Audio transcoded to OGG/Opus")

	return &Artifact{Data: encoded, Kind: KindVoice, MimeType: "audio/ogg"}
}

// extensionForMime maps a baseline audio MIME type to a file extension for
// the transcoder input.
func extensionForMime(mime string) string {
	switch mime {
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	default:
		return ".wav"
	}
}
