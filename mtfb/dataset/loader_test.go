package dataset

import (
	"errors"
	"io"
	"testing"

	"github.com/ZanzyTHEbar/mt-feedback/mtfb/sft"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// examplesOfLength builds example i with i+1 tokens, every token equal to i+10.
func examplesOfLength(n int) []sft.EncodedExample {
	out := make([]sft.EncodedExample, n)
	for i := range out {
		ids := make([]int64, i+1)
		for j := range ids {
			ids[j] = int64(i + 10)
		}
		out[i] = sft.EncodedExample{TokenIDs: ids, LabelIDs: append([]int64(nil), ids...)}
	}
	return out
}

func collectFirstColumn(t *testing.T, l *Loader) []int64 {
	t.Helper()
	var firsts []int64
	require.NoError(t, l.ForEach(func(_ int, b *sft.Batch) error {
		for _, row := range b.TokenIDs {
			firsts = append(firsts, row[0])
		}
		return nil
	}))
	return firsts
}

func TestLoaderSequential(t *testing.T) {
	l, err := NewLoader(examplesOfLength(5), 0, LoaderOptions{BatchSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, l.Len())

	b, err := l.Next()
	require.NoError(t, err)
	rows, cols := b.Shape()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 2, cols)
	assert.Equal(t, []int64{10, 0}, b.TokenIDs[0])
	assert.Equal(t, []int64{10, sft.IgnoreIndex}, b.LabelIDs[0])

	_, err = l.Next()
	require.NoError(t, err)

	b, err = l.Next()
	require.NoError(t, err)
	rows, cols = b.Shape()
	assert.Equal(t, 1, rows, "last partial batch is kept")
	assert.Equal(t, 5, cols)

	_, err = l.Next()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestLoaderDropLast(t *testing.T) {
	l, err := NewLoader(examplesOfLength(5), 0, LoaderOptions{BatchSize: 2, DropLast: true})
	require.NoError(t, err)
	assert.Equal(t, 2, l.Len())
	assert.Len(t, collectFirstColumn(t, l), 4)
}

func TestLoaderShuffleIsSeededPerEpoch(t *testing.T) {
	opts := LoaderOptions{BatchSize: 3, Shuffle: true, Seed: 7}
	a, err := NewLoader(examplesOfLength(20), 0, opts)
	require.NoError(t, err)
	b, err := NewLoader(examplesOfLength(20), 0, opts)
	require.NoError(t, err)

	first := collectFirstColumn(t, a)
	assert.Equal(t, first, collectFirstColumn(t, b), "same seed, same order")
	assert.ElementsMatch(t, []int64{10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29}, first)

	a.Reset()
	assert.Equal(t, 1, a.Epoch())
	second := collectFirstColumn(t, a)
	assert.ElementsMatch(t, first, second)
	assert.NotEqual(t, first, second, "a new epoch reshuffles")
}

func TestLoaderReset(t *testing.T) {
	l, err := NewLoader(examplesOfLength(3), 0, LoaderOptions{BatchSize: 2})
	require.NoError(t, err)

	l.Reset()
	assert.Equal(t, 0, l.Epoch(), "reset before reading stays in epoch 0")

	assert.Equal(t, []int64{10, 11, 12}, collectFirstColumn(t, l))
	l.Reset()
	assert.Equal(t, []int64{10, 11, 12}, collectFirstColumn(t, l))
}

func TestLoaderErrors(t *testing.T) {
	_, err := NewLoader(nil, 0, LoaderOptions{})
	assert.Error(t, err)

	l, err := NewLoader(nil, 0, LoaderOptions{BatchSize: 4})
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())
	_, err = l.Next()
	assert.ErrorIs(t, err, io.EOF)

	stop := errors.New("stop")
	l, err = NewLoader(examplesOfLength(4), 0, LoaderOptions{BatchSize: 1})
	require.NoError(t, err)
	calls := 0
	err = l.ForEach(func(step int, _ *sft.Batch) error {
		calls++
		if step == 1 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, calls)
}
