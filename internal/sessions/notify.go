package sessions

import "log/slog"

// Level is the severity of a user-visible notice.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notice is a transient message for the user.
type Notice struct {
	Level   Level
	Message string
	Err     error
}

// Notifier surfaces notices to the user.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notice) { f(n) }

type logNotifier struct {
	logger *slog.Logger
}

func (l logNotifier) Notify(n Notice) {
	if n.Level == LevelError {
		l.logger.Error(n.Message, "error", n.Err)
		return
	}
	l.logger.Info(n.Message, "level", n.Level.String())
}
