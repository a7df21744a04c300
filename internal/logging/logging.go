package logging

import (
	"fmt"
	"path/filepath"
	"time"
)

// sessionStampLayout names files after the wall-clock moment a session
// started, sortable lexically.
const sessionStampLayout = "20060102_150405"

// SessionStamp formats a session start time for use in file names.
func SessionStamp(sessionStart time.Time) string {
	return sessionStart.Format(sessionStampLayout)
}

// LogFilePath builds a log file path using OS-appropriate path separators.
func LogFilePath(logsDir, component string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", component, SessionStamp(sessionStart)),
	)
}
