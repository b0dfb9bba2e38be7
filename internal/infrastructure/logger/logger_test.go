package logger

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	Convey("Given the Logger package", t, func() {
		Convey("New function", func() {
			Convey("When creating a logger with console output only", func() {
				logger, err := New(Options{})

				Convey("It should create a logger successfully", func() {
					So(err, ShouldBeNil)
					So(logger, ShouldNotBeNil)
					So(func() { logger.Info("Test log") }, ShouldNotPanic)
				})
			})

			Convey("When creating a logger with a valid log file", func() {
				tempDir, err := os.MkdirTemp("", "logger_test")
				So(err, ShouldBeNil)
				defer os.RemoveAll(tempDir)

				logFile := filepath.Join(tempDir, "backup.log")

				logger, err := New(Options{Verbose: true, File: logFile})

				Convey("It should create a logger and log file successfully", func() {
					So(err, ShouldBeNil)
					So(logger, ShouldNotBeNil)

					logger.Infof("Folders to backup: %s", "alpha, beta")
					logger.Sync()

					content, err := os.ReadFile(logFile)
					So(err, ShouldBeNil)
					So(string(content), ShouldContainSubstring, "Folders to backup: alpha, beta")

					logger.Close()
				})
			})

			Convey("When the log file path cannot be created", func() {
				logger, err := New(Options{File: "/dev/null/sub/backup.log"})

				Convey("It should return an error", func() {
					So(err, ShouldNotBeNil)
					So(err.Error(), ShouldContainSubstring, "failed to create log directory")
					So(logger, ShouldBeNil)
				})
			})
		})

		Convey("TruncateOversized", func() {
			tempDir := t.TempDir()
			logFile := filepath.Join(tempDir, "backup.log")

			Convey("When the file is missing", func() {
				truncated, err := TruncateOversized(logFile, 10)
				So(err, ShouldBeNil)
				So(truncated, ShouldBeFalse)
			})

			Convey("When the file is within the limit", func() {
				So(os.WriteFile(logFile, []byte("0123456789"), 0644), ShouldBeNil)
				truncated, err := TruncateOversized(logFile, 10)
				So(err, ShouldBeNil)
				So(truncated, ShouldBeFalse)

				info, _ := os.Stat(logFile)
				So(info.Size(), ShouldEqual, 10)
			})

			Convey("When the file exceeds the limit", func() {
				So(os.WriteFile(logFile, []byte("0123456789A"), 0644), ShouldBeNil)
				truncated, err := TruncateOversized(logFile, 10)
				So(err, ShouldBeNil)
				So(truncated, ShouldBeTrue)

				info, _ := os.Stat(logFile)
				So(info.Size(), ShouldEqual, 0)
			})
		})

		Convey("rotatingFile", func() {
			sink := rotatingFile("/var/log/folderbak/backup.log")

			Convey("It rotates at the truncation limit and keeps one old file", func() {
				So(sink.Filename, ShouldEqual, "/var/log/folderbak/backup.log")
				So(int64(sink.MaxSize)<<20, ShouldEqual, MaxLogSize)
				So(sink.MaxBackups, ShouldEqual, 1)
				So(sink.Compress, ShouldBeFalse)
			})
		})

		Convey("DebugWriter", func() {
			logger := Nop()
			w := logger.DebugWriter("ftp")

			So(w, ShouldNotBeNil)
			n, err := w.Write([]byte("220 ready\n"))
			So(err, ShouldBeNil)
			So(n, ShouldBeGreaterThan, 0)
		})

		Convey("Close method", func() {
			logger, err := New(Options{})
			So(err, ShouldBeNil)

			So(func() { logger.Close() }, ShouldNotPanic)
		})
	})
}
