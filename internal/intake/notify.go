package intake

import (
	"context"
	"log/slog"
	"sync"
)

// Level grades a notice.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is a user-facing message about one step of a batch.
type Notice struct {
	Level    Level  `json:"level"`
	Stage    Stage  `json:"stage"`
	Document int    `json:"document"`
	Part     int    `json:"part"` // -1 when the notice is about the invoice
	Label    string `json:"label"`
	Message  string `json:"message"`
}

// Notifier receives notices as a batch progresses.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notice)

func (f NotifierFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

// LogNotifier writes notices to a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

func (l LogNotifier) Notify(ctx context.Context, n Notice) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch n.Level {
	case LevelWarning:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	}
	logger.Log(ctx, level, n.Message,
		slog.String("stage", string(n.Stage)),
		slog.Int("document", n.Document),
		slog.Int("part", n.Part),
		slog.String("label", n.Label),
	)
}

// Collector keeps every notice in memory.
type Collector struct {
	mu      sync.Mutex
	notices []Notice
}

func (c *Collector) Notify(_ context.Context, n Notice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, n)
}

// Notices returns a copy of the collected notices.
func (c *Collector) Notices() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notice(nil), c.notices...)
}

type multiNotifier []Notifier

func (m multiNotifier) Notify(ctx context.Context, n Notice) {
	for _, notifier := range m {
		notifier.Notify(ctx, n)
	}
}

// MultiNotifier fans notices out to every non-nil notifier.
func MultiNotifier(notifiers ...Notifier) Notifier {
	var out multiNotifier
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}
