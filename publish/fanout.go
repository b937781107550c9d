package publish

import (
	"github.com/sirupsen/logrus"

	"wandcaster/session"
)

// Fanout forwards each message to every publisher in order.
type Fanout []session.Publisher

func (f Fanout) Publish(msg session.Message) {
	for _, p := range f {
		p.Publish(msg)
	}
}

// Logger writes messages to the log. Trace points go to debug.
type Logger struct {
	Log logrus.FieldLogger
}

func (l Logger) Publish(msg session.Message) {
	entry := l.Log.WithFields(logrus.Fields{"kind": msg.Kind, "data": msg.Data})
	if msg.Kind == session.KindTrace {
		entry.Debug("publish")
		return
	}
	entry.Info("publish")
}
