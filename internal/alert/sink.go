package alert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Cue selects how loud an alert is.
type Cue int

const (
	CueNormal   Cue = iota // single beep
	CueElevated            // triple beep: sells and repeat or heavy actors
)

func (c Cue) String() string {
	if c == CueElevated {
		return "elevated"
	}
	return "normal"
}

// Sink emits an audible cue. Emit is best effort and may block briefly.
type Sink interface {
	Emit(ctx context.Context, cue Cue) error
}

// NopSink discards every cue.
type NopSink struct{}

// Emit does nothing.
func (NopSink) Emit(context.Context, Cue) error { return nil }

// BellSink rings the terminal bell by writing BEL to w.
type BellSink struct {
	mu  sync.Mutex
	w   io.Writer
	gap time.Duration
}

// NewBellSink creates a BellSink writing to w.
func NewBellSink(w io.Writer) *BellSink {
	return &BellSink{w: w, gap: 150 * time.Millisecond}
}

// Emit rings once for CueNormal and three times for CueElevated.
func (b *BellSink) Emit(ctx context.Context, cue Cue) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rings := 1
	if cue == CueElevated {
		rings = 3
	}
	for i := 0; i < rings; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.gap):
			}
		}
		if _, err := io.WriteString(b.w, "\a"); err != nil {
			return fmt.Errorf("ring bell: %w", err)
		}
	}
	return nil
}

// CommandSink plays a system sound through a platform player and falls back to
// another sink when no player can be started.
type CommandSink struct {
	candidates map[Cue][][]string
	start      func(name string, args ...string) error
	fallback   Sink
}

// NewPlatformSink returns the sound sink for goos, e.g. runtime.GOOS.
// Players: afplay on macOS, paplay or aplay on Linux, a PowerShell beep on Windows.
func NewPlatformSink(goos string, fallback Sink) Sink {
	if fallback == nil {
		fallback = NopSink{}
	}

	var candidates map[Cue][][]string
	switch goos {
	case "darwin":
		candidates = map[Cue][][]string{
			CueNormal:   {{"afplay", "/System/Library/Sounds/Ping.aiff"}},
			CueElevated: {{"afplay", "/System/Library/Sounds/Funk.aiff"}},
		}
	case "linux":
		candidates = map[Cue][][]string{
			CueNormal: {
				{"paplay", "/usr/share/sounds/freedesktop/stereo/message.oga"},
				{"aplay", "/usr/share/sounds/alsa/Front_Center.wav"},
			},
			CueElevated: {
				{"paplay", "/usr/share/sounds/freedesktop/stereo/alarm-clock-elapsed.oga"},
				{"paplay", "/usr/share/sounds/freedesktop/stereo/message.oga"},
				{"aplay", "/usr/share/sounds/alsa/Front_Center.wav"},
			},
		}
	case "windows":
		candidates = map[Cue][][]string{
			CueNormal:   {{"powershell", "-c", "[console]::beep(800,300)"}},
			CueElevated: {{"powershell", "-c", "[console]::beep(1000,200);[console]::beep(1000,200);[console]::beep(1000,200)"}},
		}
	default:
		return fallback
	}

	return &CommandSink{
		candidates: candidates,
		start:      startDetached,
		fallback:   fallback,
	}
}

// Emit starts the first player that launches. The player is not waited on.
func (c *CommandSink) Emit(ctx context.Context, cue Cue) error {
	var errs []error
	for _, argv := range c.candidates[cue] {
		err := c.start(argv[0], argv[1:]...)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", argv[0], err))
	}

	if err := c.fallback.Emit(ctx, cue); err != nil {
		errs = append(errs, err)
		return fmt.Errorf("no sound player available: %w", errors.Join(errs...))
	}
	return nil
}

// MultiSink emits to every sink and joins their errors.
type MultiSink []Sink

// Emit calls every sink in order.
func (m MultiSink) Emit(ctx context.Context, cue Cue) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, cue); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sink modes accepted by NewSink.
const (
	ModeAuto = "auto"
	ModeBell = "bell"
	ModeNone = "none"
)

// NewSink builds the sink for a mode. ModeAuto plays a system sound with the
// terminal bell as fallback, ModeBell only rings the bell, ModeNone is silent.
func NewSink(mode, goos string, out io.Writer) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeAuto:
		return NewPlatformSink(goos, NewBellSink(out)), nil
	case ModeBell:
		return NewBellSink(out), nil
	case ModeNone:
		return NopSink{}, nil
	default:
		return nil, fmt.Errorf("unknown alert sound mode %q (want auto, bell or none)", mode)
	}
}

func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
