package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
)

// ConsoleNotifier prints notifications to a terminal.
type ConsoleNotifier struct {
	out  io.Writer
	bell bool
	mu   sync.Mutex

	low   *color.Color
	high  *color.Color
	title *color.Color
	dim   *color.Color
}

// NewConsoleNotifier creates a console channel writing to out (stdout when nil).
func NewConsoleNotifier(out io.Writer, bell bool) *ConsoleNotifier {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleNotifier{
		out:   out,
		bell:  bell,
		low:   color.New(color.FgRed, color.Bold),
		high:  color.New(color.FgGreen, color.Bold),
		title: color.New(color.FgYellow, color.Bold),
		dim:   color.New(color.Faint),
	}
}

// Name returns the name of the notifier.
func (c *ConsoleNotifier) Name() string {
	return "console"
}

// IsEnabled always returns true.
func (c *ConsoleNotifier) IsEnabled() bool {
	return true
}

// Send writes one line per notification.
func (c *ConsoleNotifier) Send(_ context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	head := c.title
	switch n.Data["type"] {
	case "low":
		head = c.low
	case "high":
		head = c.high
	}

	if c.bell {
		fmt.Fprint(c.out, "\a")
	}
	_, err := fmt.Fprintf(c.out, "%s %s  %s\n",
		c.dim.Sprint(n.Timestamp.Format("15:04:05")),
		head.Sprintf("[%s]", n.Title),
		n.Message,
	)
	return err
}
