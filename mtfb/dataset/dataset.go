// Package dataset assembles encoded splits from raw records and iterates
// them as padded minibatches.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	internal "github.com/ZanzyTHEbar/mt-feedback/mtfb"
	"github.com/ZanzyTHEbar/mt-feedback/mtfb/record"
	"github.com/ZanzyTHEbar/mt-feedback/mtfb/sft"

	roaring "github.com/RoaringBitmap/roaring"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

// Options controls dataset assembly.
type Options struct {
	// Workers bounds the number of shards encoded at once.
	Workers int
	// ShardSize is the number of records per Build call.
	ShardSize int
	// SkipMalformed drops records that fail to decode or encode instead of
	// aborting. Shape invariant violations always abort.
	SkipMalformed bool
	Logger        zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.ShardSize <= 0 {
		o.ShardSize = internal.DefaultShardSize
	}
	return o
}

// Dataset is one encoded split. Examples keep the order of the records they
// were built from, minus dropped ones.
type Dataset struct {
	Name     string
	RunID    uuid.UUID
	Examples []sft.EncodedExample
	// Dropped holds indices of records that failed to encode. Datasets from
	// Load hold 1-based line numbers instead, like Rejected.
	Dropped *roaring.Bitmap
	// Rejected holds 1-based line numbers of lines that failed to decode.
	Rejected *roaring.Bitmap
}

func newDataset(name string) *Dataset {
	return &Dataset{Name: name, RunID: uuid.New(), Dropped: roaring.New(), Rejected: roaring.New()}
}

// Len is the number of examples.
func (d *Dataset) Len() int { return len(d.Examples) }

// Tokens sums the example lengths.
func (d *Dataset) Tokens() int {
	n := 0
	for _, ex := range d.Examples {
		n += ex.Len()
	}
	return n
}

type span struct{ lo, hi int }

func shards(n, size int) []span {
	out := make([]span, 0, (n+size-1)/size)
	for lo := 0; lo < n; lo += size {
		out = append(out, span{lo: lo, hi: min(lo+size, n)})
	}
	return out
}

// Build encodes records shard by shard on a bounded pool. The first
// failing shard cancels the rest unless SkipMalformed is set, in which case
// that shard is retried one record at a time and failing records are
// recorded in Dropped.
func Build(ctx context.Context, name string, b *sft.Builder, records []record.RawRecord, opts Options) (*Dataset, error) {
	opts = opts.withDefaults()
	ds := newDataset(name)
	logger := opts.Logger.With().Str("split", name).Str("run_id", ds.RunID.String()).Logger()
	start := time.Now()

	parts := shards(len(records), opts.ShardSize)
	results := make([][]sft.EncodedExample, len(parts))
	dropped := make([][]int, len(parts))

	p := pool.New().WithMaxGoroutines(opts.Workers).WithContext(ctx).WithCancelOnError().WithFirstError()
	for i, s := range parts {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := b.Build(records[s.lo:s.hi])
			if err == nil {
				results[i] = out
				return nil
			}
			if !opts.SkipMalformed || errors.Is(err, sft.ErrShapeInvariant) {
				return fmt.Errorf("shard %d (records %d-%d): %w", i, s.lo, s.hi-1, err)
			}
			logger.Warn().Err(err).Int("shard", i).Msg("Shard failed, retrying record by record")
			results[i], dropped[i], err = buildEach(b, records, s, logger)
			return err
		})
	}
	if err := p.Wait(); err != nil {
		logger.Error().Err(err).Msg("Dataset build aborted")
		return nil, err
	}

	total := 0
	for _, r := range results {
		total += len(r)
	}
	ds.Examples = make([]sft.EncodedExample, 0, total)
	for i, r := range results {
		ds.Examples = append(ds.Examples, r...)
		for _, idx := range dropped[i] {
			ds.Dropped.Add(uint32(idx))
		}
	}

	logger.Info().
		Int("records", len(records)).
		Int("examples", ds.Len()).
		Uint64("dropped", ds.Dropped.GetCardinality()).
		Int("shards", len(parts)).
		Dur("duration", time.Since(start)).
		Msg("Dataset built")
	return ds, nil
}

func buildEach(b *sft.Builder, records []record.RawRecord, s span, logger zerolog.Logger) ([]sft.EncodedExample, []int, error) {
	kept := make([]sft.EncodedExample, 0, s.hi-s.lo)
	var dropped []int
	for idx := s.lo; idx < s.hi; idx++ {
		out, err := b.Build(records[idx : idx+1])
		if err != nil {
			if errors.Is(err, sft.ErrShapeInvariant) {
				return nil, nil, fmt.Errorf("record %d: %w", idx, err)
			}
			logger.Warn().Err(err).Int("record", idx).Msg("Dropping record")
			dropped = append(dropped, idx)
			continue
		}
		kept = append(kept, out[0])
	}
	return kept, dropped, nil
}

// Load reads a JSONL split and builds it. With SkipMalformed, lines that
// fail to decode are recorded in Rejected instead of aborting. Dropped and
// Rejected both hold line numbers of the file.
func Load(ctx context.Context, path string, b *sft.Builder, opts Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open split %s: %w", path, err)
	}
	defer f.Close()

	records, lines, rejected, err := readRecords(f, opts.SkipMalformed, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	ds, err := Build(ctx, path, b, records, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	ds.Dropped = toLines(ds.Dropped, lines)
	ds.Rejected = rejected
	return ds, nil
}

// toLines maps record indices onto the lines they were read from.
func toLines(indices *roaring.Bitmap, lines []int) *roaring.Bitmap {
	out := roaring.New()
	it := indices.Iterator()
	for it.HasNext() {
		out.Add(uint32(lines[it.Next()]))
	}
	return out
}

// readRecords returns the decoded records with the line each came from.
func readRecords(r io.Reader, skipMalformed bool, logger zerolog.Logger) ([]record.RawRecord, []int, *roaring.Bitmap, error) {
	rd := record.NewReader(r)
	rejected := roaring.New()
	var (
		records []record.RawRecord
		lines   []int
	)
	for {
		rec, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return records, lines, rejected, nil
		}
		if err != nil {
			if !skipMalformed || !errors.Is(err, record.ErrMalformedRecord) {
				return nil, nil, nil, err
			}
			logger.Warn().Err(err).Int("line", rd.Line()).Msg("Skipping malformed record")
			rejected.Add(uint32(rd.Line()))
			continue
		}
		records = append(records, rec)
		lines = append(lines, rd.Line())
	}
}
