// Package common provides the structured logging and small generic helpers
// shared by every package in this module: the store adapter, the ingest
// paths, the sync processor, and the HTTP surface all log through the same
// logrus instance so operators get one consistent stream.
//
// Output routing. Error-level entries are written to stderr so container
// orchestrators can route them to alerting separately from stdout's
// info/debug/warn noise.
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes logrus output to stderr for error-level entries and
// stdout for everything else, based on the formatted line's level marker
// ("level=" for the text formatter, "level": for the JSON formatter).
type OutputSplitter struct{}

func (splitter *OutputSplitter) Write(p []byte) (n int, err error) {
	if bytes.Contains(p, []byte("level=error")) || bytes.Contains(p, []byte("level=fatal")) ||
		bytes.Contains(p, []byte(`"level":"error"`)) || bytes.Contains(p, []byte(`"level":"fatal"`)) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the process-wide logrus instance. core.New configures its level
// and formatter from config.ServiceConfig; every other package should log
// through it (or a ContextLogger built on top of it) rather than creating a
// logger of its own.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}
