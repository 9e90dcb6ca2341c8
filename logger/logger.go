package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Dir   string
	Level string
	Debug bool
	// Stdout overrides the console writer.
	Stdout io.Writer
}

// New configures logrus to write to the console and a rotating file in
// cfg.Dir. The returned closer flushes and closes the file.
func New(cfg Config) (*logrus.Logger, io.Closer, error) {
	if err := os.MkdirAll(cfg.Dir, os.ModePerm); err != nil {
		return nil, nil, err
	}

	logFile := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, "app.log"),
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}

	stdout := cfg.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	log := logrus.New()
	log.SetOutput(io.MultiWriter(stdout, logFile))
	log.SetFormatter(formatter(stdout))

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if cfg.Debug {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)

	return log, logFile, nil
}

// Install makes log the package-level logrus logger as well.
func Install(log *logrus.Logger) {
	logrus.SetOutput(log.Out)
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(log.GetLevel())
}

func formatter(out io.Writer) logrus.Formatter {
	if f, ok := out.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return &logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		}
	}
	return &logrus.JSONFormatter{}
}
