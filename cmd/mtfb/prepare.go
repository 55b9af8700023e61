package main

import (
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/mt-feedback/mtfb/dataset"
	"github.com/ZanzyTHEbar/mt-feedback/mtfb/sft"

	"github.com/spf13/cobra"
)

func newPrepareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prepare",
		Short: "Encode the train and validation splits and iterate their batches",
		Long:  "Loads the configured splits, encodes them in parallel, then walks one epoch of collated batches for each split and reports shapes and token counts.",
		RunE:  runPrepare,
	}
}

type splitSummary struct {
	name       string
	examples   int
	batches    int
	supervised int
	maxCols    int
	dropped    uint64
	rejected   uint64
}

func runPrepare(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	if e.cfg.Data.TrainFile == "" {
		return errors.New("no training split configured (--train-file or data.trainFile)")
	}

	opts := dataset.Options{
		Workers:       e.cfg.Data.Workers,
		ShardSize:     e.cfg.Data.ShardSize,
		SkipMalformed: e.cfg.Data.SkipMalformed,
		Logger:        e.logger,
	}

	splits := []struct {
		path      string
		batchSize int
		shuffle   bool
	}{
		{e.cfg.Data.TrainFile, e.cfg.Loader.TrainBatchSize, e.cfg.Loader.Shuffle},
		{e.cfg.Data.ValidationFile, e.cfg.Loader.EvalBatchSize, false},
	}

	out := cmd.OutOrStdout()
	for _, s := range splits {
		if s.path == "" {
			continue
		}
		ds, err := dataset.Load(cmd.Context(), s.path, e.builder, opts)
		if err != nil {
			return fmt.Errorf("failed to prepare %s: %w", s.path, err)
		}
		sum, err := walk(ds, e.tok.PadID(), dataset.LoaderOptions{
			BatchSize: s.batchSize,
			Shuffle:   s.shuffle,
			Seed:      e.cfg.Loader.Seed,
			DropLast:  e.cfg.Loader.DropLast,
		})
		if err != nil {
			return fmt.Errorf("failed to iterate %s: %w", s.path, err)
		}
		e.logger.Info().
			Str("split", sum.name).
			Int("examples", sum.examples).
			Int("batches", sum.batches).
			Int("supervised_tokens", sum.supervised).
			Int("max_len", sum.maxCols).
			Msg("Split ready")
		_, _ = fmt.Fprintf(out, "%s: %d examples, %d batches, %d supervised tokens, max length %d, %d dropped, %d rejected\n",
			sum.name, sum.examples, sum.batches, sum.supervised, sum.maxCols, sum.dropped, sum.rejected)
	}
	return nil
}

func walk(ds *dataset.Dataset, padID int64, opts dataset.LoaderOptions) (splitSummary, error) {
	sum := splitSummary{
		name:     ds.Name,
		examples: ds.Len(),
		dropped:  ds.Dropped.GetCardinality(),
		rejected: ds.Rejected.GetCardinality(),
	}
	loader, err := dataset.NewLoader(ds.Examples, padID, opts)
	if err != nil {
		return sum, err
	}
	err = loader.ForEach(func(_ int, b *sft.Batch) error {
		_, cols := b.Shape()
		sum.batches++
		sum.supervised += b.SupervisedTokens()
		sum.maxCols = max(sum.maxCols, cols)
		return nil
	})
	return sum, err
}
