package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	internal "github.com/ZanzyTHEbar/mt-feedback/mtfb"
	"github.com/ZanzyTHEbar/mt-feedback/mtfb/tokenizer"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file, environment variables
// and command line flags.
type Config struct {
	Data      DataConfig      `mapstructure:"data"`
	Tokenizer TokenizerConfig `mapstructure:"tokenizer"`
	Loader    LoaderConfig    `mapstructure:"loader"`
	Log       LogConfig       `mapstructure:"log"`
}

// DataConfig describes the raw splits and how examples are built.
type DataConfig struct {
	TrainFile      string `mapstructure:"trainFile"`
	ValidationFile string `mapstructure:"validationFile"`
	Prompt         string `mapstructure:"prompt"`
	SrcLang        string `mapstructure:"srcLang"`
	TgtLang        string `mapstructure:"tgtLang"`
	MaxLength      int    `mapstructure:"maxLength"`
	Workers        int    `mapstructure:"workers"`
	ShardSize      int    `mapstructure:"shardSize"`
	SkipMalformed  bool   `mapstructure:"skipMalformed"`
}

// TokenizerConfig stores tokenizer selection and special tokens.
type TokenizerConfig struct {
	Kind             string `mapstructure:"kind"`
	Path             string `mapstructure:"path"`
	UnkToken         string `mapstructure:"unkToken"`
	PadToken         string `mapstructure:"padToken"`
	EOSToken         string `mapstructure:"eosToken"`
	PadID            int64  `mapstructure:"padID"`
	EOSID            int64  `mapstructure:"eosID"`
	AddSpecialTokens bool   `mapstructure:"addSpecialTokens"`
}

// LoaderConfig stores minibatch iteration settings.
type LoaderConfig struct {
	TrainBatchSize int    `mapstructure:"trainBatchSize"`
	EvalBatchSize  int    `mapstructure:"evalBatchSize"`
	Shuffle        bool   `mapstructure:"shuffle"`
	Seed           uint64 `mapstructure:"seed"`
	DropLast       bool   `mapstructure:"dropLast"`
}

// LogConfig stores logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// ToInternal converts to the tokenizer package config
func (c TokenizerConfig) ToInternal() tokenizer.Config {
	return tokenizer.Config{
		Kind:             c.Kind,
		Path:             c.Path,
		UnkToken:         c.UnkToken,
		PadToken:         c.PadToken,
		EOSToken:         c.EOSToken,
		PadID:            c.PadID,
		EOSID:            c.EOSID,
		AddSpecialTokens: c.AddSpecialTokens,
	}
}

// flagKeys maps command line flag names to config keys.
var flagKeys = map[string]string{
	"train-file":                  "data.trainFile",
	"validation-file":             "data.validationFile",
	"prompt":                      "data.prompt",
	"srclang":                     "data.srcLang",
	"tgtlang":                     "data.tgtLang",
	"max-length":                  "data.maxLength",
	"preprocessing-num-workers":   "data.workers",
	"skip-malformed":              "data.skipMalformed",
	"model-dir":                   "tokenizer.path",
	"tokenizer-kind":              "tokenizer.kind",
	"per-device-train-batch-size": "loader.trainBatchSize",
	"per-device-eval-batch-size":  "loader.evalBatchSize",
	"log-level":                   "log.level",
}

// LoadConfig reads configuration from file, environment and flags. An
// explicit configPath must exist; otherwise a missing file means defaults.
// flags may be nil.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath(filepath.Join("/etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(internal.DefaultEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // data.maxLength becomes MTFB_DATA_MAXLENGTH
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data.trainFile", "")
	v.SetDefault("data.validationFile", "")
	v.SetDefault("data.prompt", internal.DefaultPrompt)
	v.SetDefault("data.srcLang", internal.DefaultSrcLang)
	v.SetDefault("data.tgtLang", internal.DefaultTgtLang)
	v.SetDefault("data.maxLength", internal.DefaultMaxLength)
	v.SetDefault("data.workers", runtime.NumCPU())
	v.SetDefault("data.shardSize", internal.DefaultShardSize)
	v.SetDefault("data.skipMalformed", false)

	v.SetDefault("tokenizer.kind", tokenizer.KindPretrained)
	v.SetDefault("tokenizer.path", "")
	v.SetDefault("tokenizer.unkToken", "[UNK]")
	v.SetDefault("tokenizer.padToken", "<pad>")
	v.SetDefault("tokenizer.eosToken", "</s>")
	v.SetDefault("tokenizer.padID", -1)
	v.SetDefault("tokenizer.eosID", -1)
	v.SetDefault("tokenizer.addSpecialTokens", true)

	v.SetDefault("loader.trainBatchSize", internal.DefaultBatchSize)
	v.SetDefault("loader.evalBatchSize", internal.DefaultBatchSize)
	v.SetDefault("loader.shuffle", true)
	v.SetDefault("loader.seed", internal.DefaultSeed)
	v.SetDefault("loader.dropLast", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Data.Prompt) == "" {
		errs = append(errs, errors.New("data.prompt cannot be empty"))
	}
	if c.Data.MaxLength <= 0 {
		errs = append(errs, fmt.Errorf("data.maxLength must be positive, got %d", c.Data.MaxLength))
	}
	if c.Data.Workers <= 0 {
		errs = append(errs, fmt.Errorf("data.workers must be positive, got %d", c.Data.Workers))
	}
	if c.Data.ShardSize <= 0 {
		errs = append(errs, fmt.Errorf("data.shardSize must be positive, got %d", c.Data.ShardSize))
	}
	if c.Loader.TrainBatchSize <= 0 || c.Loader.EvalBatchSize <= 0 {
		errs = append(errs, errors.New("loader batch sizes must be positive"))
	}
	switch strings.ToLower(c.Tokenizer.Kind) {
	case tokenizer.KindPretrained, tokenizer.KindWordPiece, tokenizer.KindVocab:
	default:
		errs = append(errs, fmt.Errorf("tokenizer.kind %q is not one of pretrained, wordpiece, vocab", c.Tokenizer.Kind))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
