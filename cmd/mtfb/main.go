// Package main provides the entry point for preparing MT critique
// fine-tuning data.
package main

import (
	"fmt"
	"os"

	internal "github.com/ZanzyTHEbar/mt-feedback/mtfb"
	"github.com/ZanzyTHEbar/mt-feedback/mtfb/config"
	"github.com/ZanzyTHEbar/mt-feedback/mtfb/sft"
	"github.com/ZanzyTHEbar/mt-feedback/mtfb/tokenizer"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           internal.DefaultAppCMD,
		Short:         "Prepare supervised fine-tuning data for translation critique",
		Long:          "Builds prompt/response token sequences from annotated machine translations and pads them into training batches.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "Path to a config file (default: search ., .., /etc/mtfb, ~/.config/mtfb)")
	pf.String("train-file", "", "Training split (JSONL)")
	pf.String("validation-file", "", "Validation split (JSONL)")
	pf.String("prompt", internal.DefaultPrompt, "Prompt template with <srctext> and <tgttext> markers")
	pf.String("srclang", internal.DefaultSrcLang, "Source language, substituted for <srclang>")
	pf.String("tgtlang", internal.DefaultTgtLang, "Target language, substituted for <tgtlang>")
	pf.Int("max-length", internal.DefaultMaxLength, "Token limit applied to prompt and response separately")
	pf.Int("preprocessing-num-workers", 0, "Parallel encoding workers (default: number of CPUs)")
	pf.Bool("skip-malformed", false, "Drop malformed records instead of failing")
	pf.String("model-dir", "", "Tokenizer file or directory")
	pf.String("tokenizer-kind", tokenizer.KindPretrained, "Tokenizer kind: pretrained, wordpiece or vocab")
	pf.Int("per-device-train-batch-size", internal.DefaultBatchSize, "Training minibatch size")
	pf.Int("per-device-eval-batch-size", internal.DefaultBatchSize, "Evaluation minibatch size")
	pf.String("log-level", "info", "Log level")

	root.AddCommand(newPrepareCmd(), newInspectCmd())
	return root
}

// env bundles what every subcommand needs.
type env struct {
	cfg     *config.Config
	logger  zerolog.Logger
	tok     tokenizer.Tokenizer
	builder *sft.Builder
}

func setup(cmd *cobra.Command) (*env, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadConfig(configPath, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := internal.NewLogger(cfg.Log.Level, cfg.Log.Pretty)
	if err != nil {
		return nil, err
	}

	tok, err := tokenizer.New(cfg.Tokenizer.ToInternal())
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	tmpl, missing := sft.ParseTemplate(cfg.Data.Prompt, cfg.Data.SrcLang, cfg.Data.TgtLang)
	if len(missing) > 0 {
		logger.Warn().Strs("missing", missing).Str("prompt", string(tmpl)).Msg("Prompt template lacks markers")
	}

	logger.Debug().
		Str("tokenizer", cfg.Tokenizer.Kind).
		Int64("pad_id", tok.PadID()).
		Int64("eos_id", tok.EOSID()).
		Int("max_length", cfg.Data.MaxLength).
		Msg("Tokenizer ready")

	return &env{
		cfg:     cfg,
		logger:  logger,
		tok:     tok,
		builder: sft.NewBuilder(tmpl, tok, cfg.Data.MaxLength),
	}, nil
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
