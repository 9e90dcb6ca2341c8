package scripts

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// fakeFFmpeg writes a shell script that copies its input to the last
// argument, or fails when the input name contains "broken".
func fakeFFmpeg(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake needs a POSIX shell")
	}
	script := `#!/bin/sh
in=""
prev=""
for arg in "$@"; do
  if [ "$prev" = "-i" ]; then in="$arg"; fi
  prev="$arg"
  last="$arg"
done
case "$in" in
  *broken*) echo "invalid data found" >&2; exit 1 ;;
esac
cp "$in" "$last"
`
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake ffmpeg: %v", err)
	}
	return path
}

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	r, err := NewRunner(Config{FFmpegPath: fakeFFmpeg(t), TempDir: t.TempDir(), Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("NewRunner returned error: %v", err)
	}
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)
	r.logger = quiet
	return r
}

func TestNewRunnerMissingBinary(t *testing.T) {
	_, err := NewRunner(Config{FFmpegPath: filepath.Join(t.TempDir(), "no-such-ffmpeg")})
	if err == nil || !IsScriptError(err) {
		t.Fatalf("expected script error, got %v", err)
	}
}

func TestConvert(t *testing.T) {
	r := newTestRunner(t)
	src := filepath.Join(t.TempDir(), "voice.ogg")
	if err := os.WriteFile(src, []byte("OggS"), 0o644); err != nil {
		t.Fatal(err)
	}

	dst, cleanup, err := r.Convert(context.Background(), src)
	if err != nil {
		t.Fatalf("Convert returned error: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(dst), "voice-") || filepath.Ext(dst) != ".wav" {
		t.Errorf("unexpected output name %s", dst)
	}
	if data, err := os.ReadFile(dst); err != nil || string(data) != "OggS" {
		t.Errorf("unexpected output %q (%v)", data, err)
	}

	cleanup()
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Errorf("expected cleanup to remove %s", dst)
	}
}

func TestConvertFailure(t *testing.T) {
	r := newTestRunner(t)
	src := filepath.Join(t.TempDir(), "broken.ogg")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, _, err := r.Convert(context.Background(), src)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "invalid data found") {
		t.Errorf("expected stderr in error, got %v", err)
	}

	entries, _ := os.ReadDir(r.config.TempDir)
	if len(entries) != 0 {
		t.Errorf("expected no leftovers, got %d files", len(entries))
	}
}

func TestConvertMissingSource(t *testing.T) {
	r := newTestRunner(t)
	if _, _, err := r.Convert(context.Background(), filepath.Join(t.TempDir(), "missing.ogg")); !IsScriptError(err) {
		t.Errorf("expected script error, got %v", err)
	}
}

func TestBuildConvertArgs(t *testing.T) {
	args := strings.Join(buildConvertArgs("in.ogg", "out.wav"), " ")
	for _, want := range []string{"-i in.ogg", "-ac 1", "-ar 16000", "-f wav", "out.wav"} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
}
