// ABOUTME: Fire-and-forget notification surface for mutation outcomes
// ABOUTME: Reports pending, success and error states; the executor never waits on it
package mutation

import (
	"go.uber.org/zap"
)

type Level string

const (
	LevelPending Level = "pending"
	LevelSuccess Level = "success"
	LevelError   Level = "error"
)

type Op string

const (
	OpCreate         Op = "create_prospect"
	OpUpdate         Op = "update_prospect"
	OpDelete         Op = "delete_prospect"
	OpMove           Op = "move_prospect"
	OpAddReminder    Op = "add_reminder"
	OpUpdateReminder Op = "update_reminder"
	OpToggleReminder Op = "toggle_reminder"
	OpDeleteReminder Op = "delete_reminder"
)

// Notice is one toast-style report.
type Notice struct {
	Level   Level
	Op      Op
	Subject string
	Err     error
}

type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// LogNotifier writes notices to a zap logger.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(notice Notice) {
	fields := []zap.Field{
		zap.String("op", string(notice.Op)),
		zap.String("subject", notice.Subject),
	}
	switch notice.Level {
	case LevelError:
		n.logger.Warn("mutation failed", append(fields, zap.Error(notice.Err))...)
	case LevelSuccess:
		n.logger.Info("mutation saved", fields...)
	default:
		n.logger.Debug("mutation pending", fields...)
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(Notice) {}
