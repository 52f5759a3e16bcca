package sinks

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/JakeFAU/cyphernode-status/internal/progress"
)

const defaultBarWidth = 30

// TerminalSink draws the progress bar and status text on a terminal. On a TTY
// the line is redrawn in place; otherwise every update is printed on its own
// line without color.
type TerminalSink struct {
	mu     sync.Mutex
	out    io.Writer
	width  int
	tty    bool
	text   string
	drawn  bool
	colors map[progress.Style]*color.Color
}

// NewTerminalSink writes to out with a bar of width cells (default 30).
func NewTerminalSink(out io.Writer, width int) *TerminalSink {
	if out == nil {
		out = os.Stdout
	}
	if width <= 0 {
		width = defaultBarWidth
	}
	s := &TerminalSink{
		out:   out,
		width: width,
		tty:   isTerminal(out),
		colors: map[progress.Style]*color.Color{
			progress.StyleActive:   color.New(color.FgCyan),
			progress.StyleComplete: color.New(color.FgGreen, color.Bold),
			progress.StyleError:    color.New(color.FgRed, color.Bold),
		},
	}
	if !s.tty {
		for _, c := range s.colors {
			c.DisableColor()
		}
	}
	return s
}

// Consume draws each visual event.
func (s *TerminalSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		if !evt.Visual() {
			continue
		}
		if evt.Text != "" {
			s.text = evt.Text
		}
		if err := s.draw(evt); err != nil {
			return err
		}
	}
	return nil
}

// Close terminates the in-place line so the shell prompt starts fresh.
func (s *TerminalSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tty && s.drawn {
		if _, err := fmt.Fprintln(s.out); err != nil {
			return fmt.Errorf("terminal close: %w", err)
		}
	}
	return nil
}

func (s *TerminalSink) draw(evt progress.Event) error {
	line := s.colorFor(evt.Style).Sprintf("[%s] %6.2f%%", bar(evt.Percent, s.width), evt.Percent)
	if s.text != "" {
		line += " " + s.text
	}
	var err error
	if s.tty {
		_, err = fmt.Fprintf(s.out, "\r\x1b[K%s", line)
	} else {
		_, err = fmt.Fprintln(s.out, line)
	}
	if err != nil {
		return fmt.Errorf("terminal draw: %w", err)
	}
	s.drawn = true
	return nil
}

func (s *TerminalSink) colorFor(style progress.Style) *color.Color {
	if c, ok := s.colors[style]; ok {
		return c
	}
	return s.colors[progress.StyleActive]
}

// bar renders percent (clamped to [0,100]) as width cells.
func bar(percent float64, width int) string {
	p := math.Max(0, math.Min(100, percent))
	if math.IsNaN(percent) {
		p = 0
	}
	filled := int(math.Round(p / 100 * float64(width)))
	return strings.Repeat("#", filled) + strings.Repeat("-", width-filled)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
