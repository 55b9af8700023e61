package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ZanzyTHEbar/mt-feedback/mtfb/record"
	"github.com/ZanzyTHEbar/mt-feedback/mtfb/sft"

	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show prompt, response and encoded ids for the first records of the training split",
		RunE:  runInspect,
	}
	cmd.Flags().IntP("limit", "n", 3, "Number of records to show")
	return cmd
}

func runInspect(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	if e.cfg.Data.TrainFile == "" {
		return errors.New("no training split configured (--train-file or data.trainFile)")
	}

	f, err := os.Open(e.cfg.Data.TrainFile)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", e.cfg.Data.TrainFile, err)
	}
	defer f.Close()

	out := cmd.OutOrStdout()
	rd := record.NewReader(f)
	for shown := 0; shown < limit; {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		examples, err := e.builder.Build([]record.RawRecord{rec})
		if err != nil {
			return fmt.Errorf("line %d: %w", rd.Line(), err)
		}
		ex := examples[0]
		_, _ = fmt.Fprintf(out, "--- line %d\n", rd.Line())
		_, _ = fmt.Fprintf(out, "prompt:   %q\n", sft.RenderPrefix(e.builder.Template, rec))
		_, _ = fmt.Fprintf(out, "response: %q\n", sft.RenderResponse(rec))
		_, _ = fmt.Fprintf(out, "tokens:   %v\n", ex.TokenIDs)
		_, _ = fmt.Fprintf(out, "labels:   %v\n", ex.LabelIDs)
		_, _ = fmt.Fprintf(out, "length:   %d (prompt %d)\n", ex.Len(), ex.PromptLen())
		shown++
	}
	return nil
}
