package dnsval

import "github.com/sirupsen/logrus"

// Log is the package-wide logger used by the client and its transports. It's
// a *logrus.Logger rather than an interface wrapper so callers can call
// SetLevel/SetOutput/AddHook on it directly.
var Log = logrus.New()

func init() {
	Log.SetLevel(logrus.WarnLevel)
}
