package app

import (
	"fmt"
	"io"
	"sync"
)

// Notifier receives user-facing progress lines.
type Notifier interface {
	Info(msg string)
	Good(msg string)
	Bad(msg string)
}

// NopNotifier drops every message.
type NopNotifier struct{}

func (NopNotifier) Info(string) {}
func (NopNotifier) Good(string) {}
func (NopNotifier) Bad(string)  {}

// Style renders a message for one notification level.
type Style func(msg string) string

// WriterNotifier prints one line per message, styled per level.
type WriterNotifier struct {
	mu   sync.Mutex
	w    io.Writer
	info Style
	good Style
	bad  Style
}

// NewWriterNotifier prints to w. A nil style prints the message as is.
func NewWriterNotifier(w io.Writer, info, good, bad Style) *WriterNotifier {
	plain := func(s string) string { return s }
	if info == nil {
		info = plain
	}
	if good == nil {
		good = plain
	}
	if bad == nil {
		bad = plain
	}
	return &WriterNotifier{w: w, info: info, good: good, bad: bad}
}

func (n *WriterNotifier) Info(msg string) { n.print(n.info, msg) }
func (n *WriterNotifier) Good(msg string) { n.print(n.good, msg) }
func (n *WriterNotifier) Bad(msg string)  { n.print(n.bad, msg) }

func (n *WriterNotifier) print(style Style, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.w, style(msg))
}
