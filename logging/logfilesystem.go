package logging

import (
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFile is the interface to handle log file append
type LogFile interface {
	Append(content []byte) (err error)
	Close() error
}

// LogFileSystem is the interface to handle log file directory creation and file open/append
type LogFileSystem interface {
	MkDir(dirname string) error
	Open(name string) (f LogFile, err error)
}

// LogFileImpl is a log file that rotates itself once it grows past its size limit.
type LogFileImpl struct {
	w *lumberjack.Logger
}

// Append writes content at the end of the current file, rotating first if needed.
func (f *LogFileImpl) Append(content []byte) (err error) {
	_, err = f.w.Write(content)
	return
}

// Close closes the current file.
func (f *LogFileImpl) Close() error {
	return f.w.Close()
}

// LogFileSystemImpl is the implementation for log file interface.
// Zero values leave lumberjack's own defaults in place.
type LogFileSystemImpl struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// MkDir creates a directory named path, along with any necessary parents, and returns nil, or else returns an error. If path is already a directory, MkdirAll does nothing and returns nil.
func (fs *LogFileSystemImpl) MkDir(name string) error {
	return os.MkdirAll(name, 0o755)
}

// Open returns a rotating handle for the file at name. The file itself is created on first append.
func (fs *LogFileSystemImpl) Open(name string) (ff LogFile, err error) {
	ff = &LogFileImpl{w: fs.rotator(name)}
	return
}

func (fs *LogFileSystemImpl) rotator(name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   name,
		MaxSize:    fs.MaxSizeMB,
		MaxBackups: fs.MaxBackups,
		MaxAge:     fs.MaxAgeDays,
		Compress:   fs.Compress,
	}
}
