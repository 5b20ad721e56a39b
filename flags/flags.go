// Package flags defines the command line flags shared by the nsh binaries.
package flags

import (
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

// CommonFlags are accepted by every binary.
type CommonFlags struct {
	ConfigPath string
	Verbose    int
}

func defineCommonFlags(fs *pflag.FlagSet, f *CommonFlags, configHelp string) {
	fs.StringVarP(&f.ConfigPath, "config", "C", "", configHelp)
	fs.CountVarP(&f.Verbose, "verbose", "v", "increase log verbosity (repeat for trace)")
}

// Logger returns a logger writing to stderr. It logs JSON unless stderr is a
// terminal. Each -v raises the level once above info.
func (f *CommonFlags) Logger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	switch {
	case f.Verbose >= 2:
		l.SetLevel(logrus.TraceLevel)
	case f.Verbose == 1:
		l.SetLevel(logrus.DebugLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}
