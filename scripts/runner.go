package scripts

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultFFmpegPath = "ffmpeg"
	DefaultTimeout    = 2 * time.Minute

	// Speech-to-text hosts work best with 16 kHz mono PCM.
	sampleRate = "16000"
	channels   = "1"
)

type Config struct {
	FFmpegPath  string
	TempDir     string
	Timeout     time.Duration
	Environment []string
}

// Runner runs ffmpeg for audio conversion.
type Runner struct {
	config Config
	binary string
	logger *logrus.Logger
}

func NewRunner(cfg Config) (*Runner, error) {
	const op = "Runner.New"

	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = DefaultFFmpegPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}

	binary, err := exec.LookPath(cfg.FFmpegPath)
	if err != nil {
		return nil, newScriptError(op, err, "ffmpeg executable not found")
	}
	if err := os.MkdirAll(cfg.TempDir, 0o755); err != nil {
		return nil, newScriptError(op, errors.Wrapf(err, "create %s", cfg.TempDir), "temp directory is not writable")
	}

	return &Runner{config: cfg, binary: binary, logger: logrus.StandardLogger()}, nil
}

// Run executes ffmpeg with args and returns its stdout.
func (r *Runner) Run(ctx context.Context, args ...string) ([]byte, error) {
	const op = "Runner.Run"

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	logger := r.logger.WithField("args", strings.Join(args, " "))
	logger.Debug("Executing ffmpeg")

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Env = buildEnvironment(r.config.Environment)

	output, err := r.executeCommand(cmd, logger)
	if err != nil {
		if ctx.Err() != nil {
			return nil, newScriptError(op, ctx.Err(), "ffmpeg timed out")
		}
		return nil, newScriptError(op, err, "ffmpeg execution failed")
	}
	return output, nil
}

// Convert writes a 16 kHz mono WAV copy of src into the temp directory.
// The returned cleanup removes it.
func (r *Runner) Convert(ctx context.Context, src string) (string, func(), error) {
	const op = "Runner.Convert"

	if _, err := os.Stat(src); err != nil {
		return "", nil, newScriptError(op, err, "source audio not found")
	}

	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	dst := filepath.Join(r.config.TempDir, base+"-"+uuid.NewString()+".wav")
	cleanup := func() {
		if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
			r.logger.WithError(err).WithField("file", dst).Warn("Failed to remove converted audio")
		}
	}

	if _, err := r.Run(ctx, buildConvertArgs(src, dst)...); err != nil {
		cleanup()
		return "", nil, err
	}
	if info, err := os.Stat(dst); err != nil || info.Size() == 0 {
		cleanup()
		return "", nil, newScriptError(op, err, "ffmpeg produced no output")
	}
	return dst, cleanup, nil
}

func buildConvertArgs(src, dst string) []string {
	return []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", src,
		"-ac", channels,
		"-ar", sampleRate,
		"-f", "wav",
		dst,
	}
}

func buildEnvironment(additionalEnv []string) []string {
	env := os.Environ()
	if len(additionalEnv) > 0 {
		env = append(env, additionalEnv...)
	}
	return env
}

func (r *Runner) executeCommand(cmd *exec.Cmd, logger *logrus.Entry) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrOutput := strings.TrimSpace(stderr.String())
		logger.WithError(err).WithField("stderr", stderrOutput).Error("ffmpeg execution failed")
		return nil, errors.Wrapf(err, "stderr: %s", stderrOutput)
	}
	return stdout.Bytes(), nil
}
