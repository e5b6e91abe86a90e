package eventbus

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap/zapcore"
)

// turtleIDPattern extracts an optional turtle ID from a log message of the
// form "...Turtle 42...", the same convention original log lines use when
// they mention a specific agent.
var turtleIDPattern = regexp.MustCompile(`Turtle\s+(\d+)`)

// droppedPrefixes lists message prefixes that are never forwarded as log
// events — routine polling noise from the two GET list endpoints would
// otherwise flood every dashboard subscriber on every poll.
var droppedPrefixes = []string{
	"GET /turtles",
	"GET /routines",
}

// LogCore wraps a zapcore.Core and forwards every log record as a KindLog
// Event, filtering out high-frequency polling noise and extracting an
// optional turtle ID from the message text.
type LogCore struct {
	zapcore.Core
	bus *Bus
}

// NewLogCore wraps next so that every record it would log is also published
// on bus as a log event.
func NewLogCore(next zapcore.Core, bus *Bus) *LogCore {
	return &LogCore{Core: next, bus: bus}
}

func (c *LogCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Core.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *LogCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	c.publish(ent)
	return c.Core.Write(ent, fields)
}

func (c *LogCore) With(fields []zapcore.Field) zapcore.Core {
	return &LogCore{Core: c.Core.With(fields), bus: c.bus}
}

func (c *LogCore) publish(ent zapcore.Entry) {
	msg := ent.Message
	for _, prefix := range droppedPrefixes {
		if strings.HasPrefix(msg, prefix) {
			return
		}
	}

	ev := Event{
		Type:    KindLog,
		Level:   ent.Level.String(),
		Message: msg,
	}
	if m := turtleIDPattern.FindStringSubmatch(msg); m != nil {
		if id, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			ev.TurtleID = &id
		}
	}
	c.bus.Publish(ev)
}
