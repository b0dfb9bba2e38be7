package archiver

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
)

type testLogger struct {
	warnings []string
}

func (l *testLogger) Debugf(string, ...interface{}) {}
func (l *testLogger) Infof(string, ...interface{})  {}
func (l *testLogger) Warnf(template string, args ...interface{}) {
	l.warnings = append(l.warnings, fmt.Sprintf(template, args...))
}

type call struct {
	name string
	args []string
}

// fakeRunner records invocations and answers from a per-command script.
type fakeRunner struct {
	calls   []call
	results map[string]func(args []string) ([]byte, error)
}

func (r *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	r.calls = append(r.calls, call{name: name, args: args})
	if fn, ok := r.results[name]; ok {
		return fn(args)
	}
	return nil, nil
}

// argAfter returns the argument following flag.
func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func makeTree(root string) error {
	files := map[string]string{
		"readme.txt":          "hello",
		"docs/guide.md":       "# guide",
		"docs/deep/notes.txt": "deep notes",
	}
	for rel, content := range files {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}

// readArchive returns regular file contents keyed by archive path.
func readArchive(path, compression string) (map[string]string, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var r io.Reader
	if compression == CompressionZstd {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, nil, err
		}
		defer zr.Close()
		r = zr
	} else {
		gr, err := pgzip.NewReader(f)
		if err != nil {
			return nil, nil, err
		}
		defer gr.Close()
		r = gr
	}

	files := map[string]string{}
	var names []string
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		name := strings.TrimPrefix(hdr.Name, "./")
		names = append(names, name)
		if hdr.Typeflag == tar.TypeReg {
			b, err := io.ReadAll(tr)
			if err != nil {
				return nil, nil, err
			}
			files[name] = string(b)
		}
	}
	sort.Strings(names)
	return files, names, nil
}
