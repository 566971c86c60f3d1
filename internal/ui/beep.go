package ui

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/whalewatcher/watcher/internal/alert"
)

// BeepSink emits alert cues through a tcell screen.
type BeepSink struct {
	mu     sync.Mutex
	screen tcell.Screen
	gap    time.Duration
	ready  func() bool // nil means always ready
}

// NewBeepSink creates a BeepSink for screen.
func NewBeepSink(screen tcell.Screen) *BeepSink {
	return &BeepSink{screen: screen, gap: 150 * time.Millisecond}
}

// Emit beeps once for a normal cue and three times for an elevated one.
func (b *BeepSink) Emit(ctx context.Context, cue alert.Cue) error {
	if b.ready != nil && !b.ready() {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	beeps := 1
	if cue == alert.CueElevated {
		beeps = 3
	}
	for i := 0; i < beeps; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(b.gap):
			}
		}
		if err := b.screen.Beep(); err != nil {
			return fmt.Errorf("screen beep: %w", err)
		}
	}
	return nil
}
