package command

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/greenhouse-qa/greenhouse/internal/runlog"
)

// console is the human-facing log writer; file copies are added per run.
var console io.Writer = os.Stderr

func setupLogging(w io.Writer, level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if w == nil {
		w = os.Stderr
	}
	console = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	log.Logger = zerolog.New(console).With().Timestamp().Logger()
	return nil
}

// logToRun tees the global logger into greenhouse.log inside the run
// directory. The returned func closes the file.
func logToRun(run *runlog.Run) (func(), error) {
	f, err := run.CreateLogFile("greenhouse")
	if err != nil {
		return nil, err
	}
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(console, f)).With().Timestamp().Logger()
	return func() {
		log.Logger = zerolog.New(console).With().Timestamp().Logger()
		f.Close()
	}, nil
}
