package log

import (
	stdlog "log"

	"github.com/hamba/pkg/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the log level that will be used.
type Level int

// The log level constants.
const (
	Debug Level = iota
	Info
)

// Bridge is a log bridge to a standard logger.
type Bridge struct {
	log    log.Logger
	lvl    Level
	prefix string
}

// NewBridge returns a log bridge.
func NewBridge(l log.Logger, lvl Level, prefix string) *stdlog.Logger {
	adpt := &Bridge{
		log:    l,
		lvl:    lvl,
		prefix: prefix,
	}

	return stdlog.New(adpt, "", 0)
}

// Write writes a log line.
func (b *Bridge) Write(p []byte) (n int, err error) {
	line := b.prefix + string(p)

	switch b.lvl {
	case Debug:
		b.log.Debug(line)

	default:
		b.log.Info(line)
	}

	return len(p), nil
}

// NewZap returns a zap logger writing through the given logger.
func NewZap(l log.Logger) *zap.Logger {
	return zap.New(&zapCore{log: l})
}

type zapCore struct {
	log    log.Logger
	fields []zapcore.Field
}

func (c *zapCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= zapcore.InfoLevel
}

func (c *zapCore) With(fields []zapcore.Field) zapcore.Core {
	all := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	all = append(all, c.fields...)
	all = append(all, fields...)

	return &zapCore{log: c.log, fields: all}
}

func (c *zapCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *zapCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	ctx := make([]interface{}, 0, len(enc.Fields)*2)
	for k, v := range enc.Fields {
		ctx = append(ctx, k, v)
	}

	switch {
	case ent.Level < zapcore.InfoLevel:
		c.log.Debug(ent.Message, ctx...)
	case ent.Level == zapcore.InfoLevel:
		c.log.Info(ent.Message, ctx...)
	default:
		c.log.Error(ent.Message, ctx...)
	}
	return nil
}

func (c *zapCore) Sync() error {
	return nil
}
