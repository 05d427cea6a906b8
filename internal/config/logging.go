package config

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func SetupLogging(level, format string) {
	SetupLoggingTo(os.Stderr, level, format)
}

// SetupLoggingTo configures the global logger; format is console or json.
func SetupLoggingTo(w io.Writer, level, format string) {
	switch strings.ToLower(level) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	if strings.EqualFold(format, "json") {
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
		return
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen})
}
