package server

import (
	"os"
	"path/filepath"

	l "github.com/sirupsen/logrus"
)

const logFilename = "gomtpfs.log"

// setupLogging sets up logging into file logDir at level logLevel. The log
// file is created if it doesn't exist yet, owned by whichever user
// invoked the mount (gomtpfs is a regular user process, not a system
// daemon with a fixed service account).
func setupLogging(logDir, logLevel string) (err error) {
	// set up logging: no log entries possible before this statement!
	level, err := l.ParseLevel(logLevel)
	if err != nil {
		return
	}

	path := filepath.Join(logDir, logFilename)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return
	}

	l.SetOutput(f)
	l.SetLevel(level)
	return
}
