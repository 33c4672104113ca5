package indicator

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/jfreymuth/pulse"
	"github.com/rbright/murmur/internal/config"
)

type cueKind int

const (
	cueStart cueKind = iota + 1
	cueStop
	cueComplete
	cueCancel
)

const (
	cueRate = 16000
	cueGain = 0.18
	cueGap  = 22 * time.Millisecond
	cueRamp = 5 * time.Millisecond
)

type tone struct {
	hz     float64
	length time.Duration
}

// cue is one feedback sound: a user-supplied file when configured, else a
// short synthesized chime.
type cue struct {
	tones []tone
	file  func(config.IndicatorConfig) string
}

var cues = map[cueKind]cue{
	cueStart: {
		tones: []tone{{880, 70 * time.Millisecond}, {1175, 70 * time.Millisecond}},
		file:  func(c config.IndicatorConfig) string { return c.SoundStartFile },
	},
	cueStop: {
		tones: []tone{{620, 120 * time.Millisecond}},
		file:  func(c config.IndicatorConfig) string { return c.SoundStopFile },
	},
	cueComplete: {
		tones: []tone{{740, 65 * time.Millisecond}, {988, 90 * time.Millisecond}},
		file:  func(c config.IndicatorConfig) string { return c.SoundCompleteFile },
	},
	cueCancel: {
		tones: []tone{{480, 75 * time.Millisecond}, {360, 90 * time.Millisecond}},
		file:  func(c config.IndicatorConfig) string { return c.SoundCancelFile },
	},
}

var cuePCM = renderCues()

func renderCues() map[cueKind][]int16 {
	out := make(map[cueKind][]int16, len(cues))
	for kind, c := range cues {
		out[kind] = renderCue(c.tones)
	}
	return out
}

// emitCue blocks until the cue has played or ctx ends.
func emitCue(ctx context.Context, kind cueKind, cfg config.IndicatorConfig) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if path := cuePath(kind, cfg); path != "" {
		if err := playCueFile(ctx, path); err == nil {
			return nil
		}
	}
	pcm := cuePCM[kind]
	if len(pcm) == 0 {
		return nil
	}
	return playPCM(ctx, pcm)
}

func cuePath(kind cueKind, cfg config.IndicatorConfig) string {
	c, ok := cues[kind]
	if !ok {
		return ""
	}
	return expandHome(c.file(cfg))
}

// expandHome resolves a leading "~" or "~/".
func expandHome(raw string) string {
	raw = strings.TrimSpace(raw)
	rest, ok := strings.CutPrefix(raw, "~")
	if !ok || (rest != "" && !strings.HasPrefix(rest, "/")) {
		return raw
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return raw
	}
	return filepath.Join(home, rest)
}

func playCueFile(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("stat cue file %q: %w", path, err)
	}
	if err := exec.CommandContext(ctx, "pw-play", "--media-role", "Notification", path).Run(); err != nil {
		return fmt.Errorf("play cue file %q: %w", path, err)
	}
	return nil
}

// playPCM pushes mono 16 kHz samples through a short-lived Pulse playback
// stream and waits for it to drain.
func playPCM(ctx context.Context, pcm []int16) error {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("murmur"),
		pulse.ClientApplicationIconName("audio-input-microphone"),
	)
	if err != nil {
		return fmt.Errorf("connect pulse server: %w", err)
	}
	defer client.Close()

	remaining := pcm
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if len(remaining) == 0 || ctx.Err() != nil {
			return 0, pulse.EndOfData
		}
		n := copy(buf, remaining)
		remaining = remaining[n:]
		if len(remaining) == 0 {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(
		reader,
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(cueRate),
		pulse.PlaybackLatency(0.02),
		pulse.PlaybackMediaName("murmur cue"),
	)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	stream.Start()
	stream.Drain()
	if err := stream.Error(); err != nil {
		return fmt.Errorf("play cue stream: %w", err)
	}
	return nil
}

// renderCue joins tones with a short silent gap.
func renderCue(tones []tone) []int16 {
	gap := sampleCount(cueGap)
	var pcm []int16
	for i, t := range tones {
		if i > 0 {
			pcm = append(pcm, make([]int16, gap)...)
		}
		pcm = append(pcm, renderTone(t)...)
	}
	return pcm
}

// renderTone is a sine with linear fade in and out to avoid clicks.
func renderTone(t tone) []int16 {
	n := sampleCount(t.length)
	if n <= 0 || t.hz <= 0 {
		return nil
	}
	ramp := float64(min(max(n/10, 1), sampleCount(cueRamp)))

	pcm := make([]int16, n)
	for i := range pcm {
		env := min(1.0, float64(i)/ramp, float64(n-1-i)/ramp)
		phase := 2 * math.Pi * t.hz * float64(i) / cueRate
		pcm[i] = int16(math.Round(math.Sin(phase) * cueGain * env * math.MaxInt16))
	}
	return pcm
}

func sampleCount(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueRate))
}
