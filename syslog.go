package dnsval

import (
	syslog "github.com/RackSec/srslog"
	"github.com/sirupsen/logrus"
)

// SyslogOptions configures a syslog logging sink.
type SyslogOptions struct {
	// "udp", "tcp", "unix". Defaults to "udp" when Address is set.
	Network string

	// Remote address; empty dials the local syslog daemon.
	Address string

	// Priority as per https://pkg.go.dev/log/syslog#Priority.
	Priority int

	// Tag is the syslog program tag.
	Tag string
}

// syslogHook forwards logrus entries to syslog. Adapted from the teacher's
// Syslog resolver stage (syslog.go), which logged queries/answers passing
// through a proxy chain; here there's no such chain to sit in, so the same
// srslog.Writer is driven as a logrus.Hook instead, forwarding whatever the
// client and transports already log through Log.
type syslogHook struct {
	writer *syslog.Writer
}

var _ logrus.Hook = &syslogHook{}

// NewSyslogHook dials a syslog endpoint and returns a logrus.Hook that
// forwards every entry to it. Attach it with Log.AddHook.
func NewSyslogHook(opt SyslogOptions) (logrus.Hook, error) {
	network := opt.Network
	if network == "" && opt.Address != "" {
		network = "udp"
	}
	writer, err := syslog.Dial(network, opt.Address, syslog.Priority(opt.Priority), opt.Tag)
	if err != nil {
		return nil, err
	}
	return &syslogHook{writer: writer}, nil
}

func (h *syslogHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *syslogHook) Fire(e *logrus.Entry) error {
	line, err := e.String()
	if err != nil {
		return err
	}
	_, err = h.writer.Write([]byte(line))
	return err
}
