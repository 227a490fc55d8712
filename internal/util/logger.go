package util

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	logFileMu sync.Mutex
	logFile   *os.File
	fileHook  *FileHook
)

// FileHook is a logrus hook that copies every entry into a log file. The
// console keeps its colored formatter; the file gets a plain one.
type FileHook struct {
	mu        sync.Mutex
	file      *os.File
	formatter logrus.Formatter
}

// Levels returns the levels the hook handles.
func (hook *FileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire writes one entry to the file.
func (hook *FileHook) Fire(entry *logrus.Entry) error {
	hook.mu.Lock()
	defer hook.mu.Unlock()

	if hook.file == nil {
		return nil
	}

	line, err := hook.formatter.Format(entry)
	if err != nil {
		return err
	}

	_, err = hook.file.Write(line)
	return err
}

// InitLogger configures the console formatter.
func InitLogger() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.DateTime,
	})
	logrus.SetLevel(logrus.InfoLevel)
}

// InitLoggerWithFile additionally mirrors all log entries into a file under
// logDir, named after the worker identity. A worker is short-lived and
// restarted externally, so there is no rotation here; cleanup belongs to the
// engine host. Returns the log file path.
func InitLoggerWithFile(logDir, id string) (string, error) {
	logFileMu.Lock()
	defer logFileMu.Unlock()

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(logDir, fmt.Sprintf("worker-%s.log", id))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return "", fmt.Errorf("failed to open log file: %w", err)
	}

	logFile = file
	fileHook = &FileHook{
		file: file,
		formatter: &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.DateTime,
			DisableColors:   true,
		},
	}
	logrus.AddHook(fileHook)

	return path, nil
}

// CloseLogFile closes the file output if it was enabled.
func CloseLogFile() error {
	logFileMu.Lock()
	defer logFileMu.Unlock()

	if logFile == nil {
		return nil
	}

	if fileHook != nil {
		fileHook.mu.Lock()
		fileHook.file = nil
		fileHook.mu.Unlock()
	}

	err := logFile.Close()
	logFile = nil
	return err
}
