// Package dcplog provides the shared logging setup used by the daemons
// (bpd, vardisd, srpd), modelled on the op/go-logging backend selection used
// throughout the original stack.
package dcplog

import (
	stdlog "log"
	"log/syslog"
	"os"

	"github.com/op/go-logging"
)

var stderrFormat = logging.MustStringFormatter(
	`%{color}%{time:15:04:05.000} %{level:.4s} ▶ %{message}%{color:reset}`,
)

var syslogFormat = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{level:.4s} ▶ %{message}`,
)

// Setup builds a *logging.Logger for the given module prefix ("bpd",
// "vardisd", "dcpctl", ...). It prefers syslog when trySyslog is set and a
// syslog daemon is reachable, falling back to a colourized stderr backend.
// The default level can be overridden with the DCP_LOG_LEVEL environment
// variable.
func Setup(prefix string, defaultLevel logging.Level, trySyslog bool) *logging.Logger {
	log := logging.MustGetLogger(prefix)

	var backend logging.Backend
	if trySyslog {
		sb, err := logging.NewSyslogBackendPriority(prefix, syslog.LOG_NOTICE)
		if err == nil {
			logging.SetFormatter(syslogFormat)
			if syslogBackend, ok := sb.(*logging.SyslogBackend); ok {
				stdlog.SetOutput(syslogBackend.Writer)
			}
			backend = sb
		}
	}
	if backend == nil {
		backend = logging.NewLogBackend(os.Stderr, prefix, 0)
		logging.SetFormatter(stderrFormat)
	}

	leveled := logging.AddModuleLevel(backend)
	switch os.Getenv("DCP_LOG_LEVEL") {
	case "CRITICAL":
		leveled.SetLevel(logging.CRITICAL, prefix)
	case "ERROR":
		leveled.SetLevel(logging.ERROR, prefix)
	case "WARNING":
		leveled.SetLevel(logging.WARNING, prefix)
	case "NOTICE":
		leveled.SetLevel(logging.NOTICE, prefix)
	case "INFO":
		leveled.SetLevel(logging.INFO, prefix)
	case "DEBUG":
		leveled.SetLevel(logging.DEBUG, prefix)
	default:
		leveled.SetLevel(defaultLevel, prefix)
	}

	logging.SetBackend(leveled)
	return log
}
