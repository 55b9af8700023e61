package sft

import "fmt"

// Sequence is anything carrying a token sequence and its labels. Collate
// reads only these two; other fields of the concrete type are dropped.
type Sequence interface {
	TokenSequence() []int64
	LabelSequence() []int64
}

// Batch is a dense [rows, cols] pair of id matrices. Each matrix is backed
// by one contiguous row-major slice.
type Batch struct {
	TokenIDs [][]int64
	LabelIDs [][]int64
}

// Shape returns rows and columns.
func (b *Batch) Shape() (int, int) {
	if len(b.TokenIDs) == 0 {
		return 0, 0
	}
	return len(b.TokenIDs), len(b.TokenIDs[0])
}

// SupervisedTokens counts label cells that contribute to the loss.
func (b *Batch) SupervisedTokens() int {
	n := 0
	for _, row := range b.LabelIDs {
		for _, v := range row {
			if v != IgnoreIndex {
				n++
			}
		}
	}
	return n
}

// Collate right-pads examples to the longest token sequence. Labels are
// padded with padID as well and then every label equal to padID becomes
// IgnoreIndex. The replacement is by value, so a genuine label equal to
// padID (for instance an eos that shares the pad id) is masked too.
// Inputs are not modified.
func Collate[S Sequence](examples []S, padID int64) (*Batch, error) {
	if len(examples) == 0 {
		return nil, ErrEmptyBatch
	}

	tokens := make([][]int64, len(examples))
	labels := make([][]int64, len(examples))
	maxLen := 0
	for i, ex := range examples {
		tokens[i] = ex.TokenSequence()
		labels[i] = ex.LabelSequence()
		if len(tokens[i]) != len(labels[i]) {
			return nil, fmt.Errorf("%w: example %d has %d tokens and %d labels",
				ErrShapeInvariant, i, len(tokens[i]), len(labels[i]))
		}
		maxLen = max(maxLen, len(tokens[i]))
	}

	batch := &Batch{
		TokenIDs: padRows(tokens, maxLen, padID),
		LabelIDs: padRows(labels, maxLen, padID),
	}
	for _, row := range batch.LabelIDs {
		for j, v := range row {
			if v == padID {
				row[j] = IgnoreIndex
			}
		}
	}
	return batch, nil
}

func padRows(rows [][]int64, width int, pad int64) [][]int64 {
	flat := make([]int64, len(rows)*width)
	out := make([][]int64, len(rows))
	for i, row := range rows {
		dst := flat[i*width : (i+1)*width : (i+1)*width]
		for j := copy(dst, row); j < width; j++ {
			dst[j] = pad
		}
		out[i] = dst
	}
	return out
}
