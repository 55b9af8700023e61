package internal

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

var (
	// DefaultAppName is used for config search paths and the env prefix
	DefaultAppName    = "mtfb"
	DefaultAppCMD     = DefaultAppName
	DefaultEnvPrefix  = strings.ToUpper(DefaultAppName)
	DefaultConfigPath = filepath.Join(getHomeDir(), ".config", DefaultAppName)

	// Default data preparation settings
	DefaultPrompt    = "<srctext> [PLHD95] 请翻译成英文. "
	DefaultSrcLang   = "Chinese"
	DefaultTgtLang   = "English"
	DefaultMaxLength = 256
	DefaultShardSize = 1000
	DefaultBatchSize = 20
	DefaultSeed      = 42
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// GetLogger returns a properly configured zerolog logger instance
func GetLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// NewLogger builds a stderr logger at the given level. pretty switches to
// the human-readable console writer.
func NewLogger(level string, pretty bool) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if strings.TrimSpace(level) != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}
	if pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger(), nil
	}
	return GetLogger().Level(lvl), nil
}
