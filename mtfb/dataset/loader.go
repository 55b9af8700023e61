package dataset

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/ZanzyTHEbar/mt-feedback/mtfb/sft"
)

// LoaderOptions controls minibatch iteration.
type LoaderOptions struct {
	BatchSize int
	Shuffle   bool
	Seed      uint64
	DropLast  bool
}

// Loader yields collated minibatches over a fixed set of examples. It is
// not safe for concurrent use; collation of distinct batches is.
type Loader struct {
	examples []sft.EncodedExample
	padID    int64
	opts     LoaderOptions
	order    []int
	pos      int
	epoch    int
}

func NewLoader(examples []sft.EncodedExample, padID int64, opts LoaderOptions) (*Loader, error) {
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	l := &Loader{examples: examples, padID: padID, opts: opts, order: make([]int, len(examples))}
	l.Reset()
	return l, nil
}

// Len is the number of batches per epoch.
func (l *Loader) Len() int {
	n := len(l.examples) / l.opts.BatchSize
	if !l.opts.DropLast && len(l.examples)%l.opts.BatchSize != 0 {
		n++
	}
	return n
}

// Epoch starts at 0 and advances on Reset once a batch has been read.
func (l *Loader) Epoch() int { return l.epoch }

// Reset starts a new epoch. With Shuffle the order depends only on Seed and
// the epoch number.
func (l *Loader) Reset() {
	if l.pos > 0 {
		l.epoch++
	}
	for i := range l.order {
		l.order[i] = i
	}
	if l.opts.Shuffle {
		rng := rand.New(rand.NewPCG(l.opts.Seed, uint64(l.epoch)))
		rng.Shuffle(len(l.order), func(i, j int) { l.order[i], l.order[j] = l.order[j], l.order[i] })
	}
	l.pos = 0
}

// Next returns the next batch, or io.EOF at the end of the epoch.
func (l *Loader) Next() (*sft.Batch, error) {
	remaining := len(l.order) - l.pos
	if remaining <= 0 || (l.opts.DropLast && remaining < l.opts.BatchSize) {
		return nil, io.EOF
	}
	n := min(l.opts.BatchSize, remaining)
	batch := make([]sft.EncodedExample, n)
	for i := range batch {
		batch[i] = l.examples[l.order[l.pos+i]]
	}
	l.pos += n
	return sft.Collate(batch, l.padID)
}

// ForEach runs fn over every remaining batch of the current epoch.
func (l *Loader) ForEach(fn func(step int, b *sft.Batch) error) error {
	for step := 0; ; step++ {
		b, err := l.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(step, b); err != nil {
			return err
		}
	}
}
