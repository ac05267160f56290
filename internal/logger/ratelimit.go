package logger

import (
	"time"

	"golang.org/x/time/rate"
)

// limited drops warning and error events once the budget is spent, so a
// flapping store or fan does not flood the log every tick.
type limited struct {
	Logger
	limiter *rate.Limiter
}

// NewLimited wraps l so that at most burst warnings/errors are emitted per
// every interval. Debug and info events are passed through.
func NewLimited(l Logger, every time.Duration, burst int) Logger {
	return &limited{
		Logger:  l,
		limiter: rate.NewLimiter(rate.Every(every), burst),
	}
}

func (l *limited) Warn() *LogEvent {
	if !l.limiter.Allow() {
		return &LogEvent{}
	}
	return l.Logger.Warn()
}

func (l *limited) Error() *LogEvent {
	if !l.limiter.Allow() {
		return &LogEvent{}
	}
	return l.Logger.Error()
}

func (l *limited) ErrorWithCode(err error) *LogEvent {
	if !l.limiter.Allow() {
		return &LogEvent{}
	}
	return l.Logger.ErrorWithCode(err)
}

func (l *limited) With(component string) Logger {
	return &limited{Logger: l.Logger.With(component), limiter: l.limiter}
}
