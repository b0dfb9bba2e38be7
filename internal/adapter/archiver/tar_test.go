package archiver

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/folderbak/internal/domain"
)

func TestTarArgs(t *testing.T) {
	Convey("TarArgs", t, func() {
		Convey("gzip uses -z and archives the folder contents", func() {
			So(TarArgs(CompressionGzip, "/srv/alpha", "/work/tmp/alpha.tar.gz"), ShouldResemble, []string{
				"-c", "-z", "--ignore-failed-read", "--warning=no-file-changed",
				"-f", "/work/tmp/alpha.tar.gz", "-C", "/srv/alpha", ".",
			})
		})

		Convey("zstd uses --zstd", func() {
			So(TarArgs(CompressionZstd, "/srv/alpha", "/out.tar.zst")[1], ShouldEqual, "--zstd")
		})
	})

	Convey("RsyncArgs mirrors directory contents", t, func() {
		So(RsyncArgs("/srv/alpha", "/work/tmp/alpha/"), ShouldResemble, []string{
			"-a", "--delete", "/srv/alpha/", "/work/tmp/alpha/",
		})
	})
}

func TestTarArchiver(t *testing.T) {
	Convey("Given a TarArchiver with a fake runner", t, func() {
		tmp := t.TempDir()
		logger := &testLogger{}
		job := &domain.FolderJob{
			Name:        "beta",
			SourcePath:  "/srv/beta",
			ArchivePath: filepath.Join(tmp, "beta.tar.gz"),
		}
		writeArchive := func(args []string) ([]byte, error) {
			return nil, os.WriteFile(argAfter(args, "-f"), []byte("archive"), 0644)
		}

		Convey("Direct mode runs tar once against the source", func() {
			runner := &fakeRunner{results: map[string]func([]string) ([]byte, error){"tar": writeArchive}}
			a := NewTar(Options{Compression: CompressionGzip, TempDir: tmp}, runner, logger)

			err := a.Archive(context.Background(), job)

			So(err, ShouldBeNil)
			So(runner.calls, ShouldHaveLength, 1)
			So(runner.calls[0].name, ShouldEqual, "tar")
			So(argAfter(runner.calls[0].args, "-C"), ShouldEqual, "/srv/beta")
		})

		Convey("Copy mode mirrors with rsync, compresses the mirror and deletes it", func() {
			mirror := filepath.Join(tmp, "beta")
			var mirrorExistedDuringTar bool
			runner := &fakeRunner{results: map[string]func([]string) ([]byte, error){
				"tar": func(args []string) ([]byte, error) {
					_, err := os.Stat(argAfter(args, "-C"))
					mirrorExistedDuringTar = err == nil
					return writeArchive(args)
				},
			}}
			a := NewTar(Options{Compression: CompressionGzip, TempDir: tmp, CopyFirst: true}, runner, logger)

			err := a.Archive(context.Background(), job)

			So(err, ShouldBeNil)
			So(runner.calls, ShouldHaveLength, 2)
			So(runner.calls[0].name, ShouldEqual, "rsync")
			So(runner.calls[0].args, ShouldResemble, RsyncArgs("/srv/beta", mirror))
			So(argAfter(runner.calls[1].args, "-C"), ShouldEqual, mirror)
			So(mirrorExistedDuringTar, ShouldBeTrue)

			_, statErr := os.Stat(mirror)
			So(os.IsNotExist(statErr), ShouldBeTrue)
		})

		Convey("A failing copy aborts before compressing", func() {
			runner := &fakeRunner{results: map[string]func([]string) ([]byte, error){
				"rsync": func([]string) ([]byte, error) {
					return nil, &ExitError{Command: "rsync", Code: 23, Output: "permission denied", Err: errors.New("exit status 23")}
				},
			}}
			a := NewTar(Options{Compression: CompressionGzip, TempDir: tmp, CopyFirst: true}, runner, logger)

			err := a.Archive(context.Background(), job)

			So(errors.Is(err, domain.ErrArchive), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "permission denied")
			So(runner.calls, ShouldHaveLength, 1)
		})

		Convey("tar exit status 2 is an archive error carrying the diagnostics", func() {
			runner := &fakeRunner{results: map[string]func([]string) ([]byte, error){
				"tar": func([]string) ([]byte, error) {
					return []byte("tar: Cannot open: No such file"), &ExitError{Command: "tar", Code: 2, Output: "tar: Cannot open: No such file", Err: errors.New("exit status 2")}
				},
			}}
			a := NewTar(Options{Compression: CompressionGzip, TempDir: tmp}, runner, logger)

			err := a.Archive(context.Background(), job)

			So(errors.Is(err, domain.ErrArchive), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "Cannot open")
		})

		Convey("tar exit status 1 is only a warning", func() {
			runner := &fakeRunner{results: map[string]func([]string) ([]byte, error){
				"tar": func(args []string) ([]byte, error) {
					if _, err := writeArchive(args); err != nil {
						return nil, err
					}
					return []byte("file changed as we read it"), &ExitError{Command: "tar", Code: 1, Output: "file changed as we read it", Err: errors.New("exit status 1")}
				},
			}}
			a := NewTar(Options{Compression: CompressionGzip, TempDir: tmp}, runner, logger)

			err := a.Archive(context.Background(), job)

			So(err, ShouldBeNil)
			So(logger.warnings, ShouldHaveLength, 1)
			So(logger.warnings[0], ShouldContainSubstring, "changed")
		})

		Convey("A stale archive is removed before tar runs", func() {
			So(os.WriteFile(job.ArchivePath, []byte("stale"), 0644), ShouldBeNil)
			var staleSeen bool
			runner := &fakeRunner{results: map[string]func([]string) ([]byte, error){
				"tar": func(args []string) ([]byte, error) {
					_, err := os.Stat(argAfter(args, "-f"))
					staleSeen = err == nil
					return writeArchive(args)
				},
			}}
			a := NewTar(Options{Compression: CompressionGzip, TempDir: tmp}, runner, logger)

			So(a.Archive(context.Background(), job), ShouldBeNil)
			So(staleSeen, ShouldBeFalse)
		})
	})

	Convey("Given the real tar binary", t, func() {
		if _, err := exec.LookPath("tar"); err != nil {
			SkipSo("tar not installed")
			return
		}

		src := t.TempDir()
		tmp := t.TempDir()
		So(makeTree(src), ShouldBeNil)
		job := &domain.FolderJob{Name: "real", SourcePath: src, ArchivePath: filepath.Join(tmp, "real.tar.gz")}

		err := NewTar(Options{Compression: CompressionGzip, TempDir: tmp}, ExecRunner{}, &testLogger{}).Archive(context.Background(), job)

		So(err, ShouldBeNil)
		files, _, err := readArchive(job.ArchivePath, CompressionGzip)
		So(err, ShouldBeNil)
		So(files["docs/guide.md"], ShouldEqual, "# guide")
	})
}

func TestExecRunner(t *testing.T) {
	Convey("Given the exec runner", t, func() {
		if _, err := exec.LookPath("sh"); err != nil {
			SkipSo("sh not installed")
			return
		}
		runner := ExecRunner{}

		Convey("A successful command returns its output", func() {
			out, err := runner.Run(context.Background(), "sh", "-c", "echo ok")
			So(err, ShouldBeNil)
			So(string(out), ShouldEqual, "ok\n")
		})

		Convey("A failing command returns an ExitError with code and output", func() {
			_, err := runner.Run(context.Background(), "sh", "-c", "echo boom >&2; exit 3")

			var exitErr *ExitError
			So(errors.As(err, &exitErr), ShouldBeTrue)
			So(exitErr.Code, ShouldEqual, 3)
			So(exitErr.Output, ShouldEqual, "boom")
			So(err.Error(), ShouldContainSubstring, "sh failed (exit 3)")
		})

		Convey("A missing binary is reported with exit -1", func() {
			_, err := runner.Run(context.Background(), "definitely-not-a-binary-xyz")

			var exitErr *ExitError
			So(errors.As(err, &exitErr), ShouldBeTrue)
			So(exitErr.Code, ShouldEqual, -1)
		})
	})
}
