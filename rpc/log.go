package rpc

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/trace"
)

// connLog bundles the two observability surfaces a Conn uses: a
// structured logrus entry for ordinary log lines (tagged with a
// connection id so multiplexed connections don't interleave unreadably),
// and an x/net/trace EventLog that receives every line the Conn logs
// (peer aborts, unimplemented notices, decode and handler errors) the way
// grpc-go's transport layer does for `/debug/requests`.
type connLog struct {
	entry *logrus.Entry
	ev    trace.EventLog
}

func newConnLog(id uint64) *connLog {
	return &connLog{
		entry: logrus.WithField("conn", id),
		ev:    trace.NewEventLog("capnrpc.Conn", fmt.Sprintf("conn=%d", id)),
	}
}

func (l *connLog) Printf(format string, args ...interface{}) {
	l.entry.Debugf(format, args...)
	if l.ev != nil {
		l.ev.Printf(format, args...)
	}
}

func (l *connLog) Errorf(format string, args ...interface{}) {
	l.entry.Errorf(format, args...)
	if l.ev != nil {
		l.ev.Errorf(format, args...)
	}
}

func (l *connLog) Finish() {
	if l.ev != nil {
		l.ev.Finish()
	}
}
