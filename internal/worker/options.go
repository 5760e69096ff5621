package worker

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type options struct {
	Logger   *zap.Logger
	Cron     *cron.Cron
	Location *time.Location
}

// Option applies configuration to the sync scheduler.
type Option func(*options)

func defaultOptions() options {
	return options{Logger: zap.NewNop(), Location: time.UTC}
}

// WithLogger injects the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.Logger = l
	}
}

// WithCron supplies a preconfigured cron scheduler instance.
func WithCron(c *cron.Cron) Option {
	return func(o *options) {
		o.Cron = c
	}
}

// WithLocation sets the scheduler timezone location.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		o.Location = loc
	}
}
