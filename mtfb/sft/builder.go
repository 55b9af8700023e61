// Package sft turns annotated translation records into supervised
// fine-tuning examples and pads them into dense batches.
package sft

import (
	"fmt"

	internal "github.com/ZanzyTHEbar/mt-feedback/mtfb"
	"github.com/ZanzyTHEbar/mt-feedback/mtfb/record"
	"github.com/ZanzyTHEbar/mt-feedback/mtfb/tokenizer"
)

// IgnoreIndex marks label positions excluded from the loss.
const IgnoreIndex int64 = -100

// EncodedExample is the token sequence of one record and its labels. The
// first PromptLen labels are IgnoreIndex; the rest mirror TokenIDs.
type EncodedExample struct {
	TokenIDs []int64
	LabelIDs []int64
}

func (e EncodedExample) TokenSequence() []int64 { return e.TokenIDs }

func (e EncodedExample) LabelSequence() []int64 { return e.LabelIDs }

// Len is the number of tokens.
func (e EncodedExample) Len() int { return len(e.TokenIDs) }

// PromptLen counts the leading masked labels.
func (e EncodedExample) PromptLen() int {
	n := 0
	for n < len(e.LabelIDs) && e.LabelIDs[n] == IgnoreIndex {
		n++
	}
	return n
}

// Builder holds what every call to Build shares. It has no mutable state,
// so one Builder may be used from many goroutines provided its tokenizer
// can be.
type Builder struct {
	Template  Template
	Tokenizer tokenizer.Tokenizer
	MaxLength int
}

func NewBuilder(tmpl Template, tok tokenizer.Tokenizer, maxLength int) *Builder {
	if maxLength <= 0 {
		maxLength = internal.DefaultMaxLength
	}
	return &Builder{Template: tmpl, Tokenizer: tok, MaxLength: maxLength}
}

// BuildExamples encodes records with the default max length.
func BuildExamples(promptTemplate string, tok tokenizer.Tokenizer, records []record.RawRecord) ([]EncodedExample, error) {
	return NewBuilder(Template(promptTemplate), tok, internal.DefaultMaxLength).Build(records)
}

// Build encodes every record or none. Prompt and response are truncated
// to MaxLength independently, so an example holds at most 2*MaxLength+1
// tokens.
func (b *Builder) Build(records []record.RawRecord) ([]EncodedExample, error) {
	if len(records) == 0 {
		return []EncodedExample{}, nil
	}

	prefixes := make([]string, len(records))
	responses := make([]string, len(records))
	for i, rec := range records {
		prefixes[i] = RenderPrefix(b.Template, rec)
		responses[i] = RenderResponse(rec)
	}

	prefixIDs, err := b.Tokenizer.EncodeBatch(prefixes, b.MaxLength, true)
	if err != nil {
		return nil, fmt.Errorf("%w: prompts: %w", ErrTokenization, err)
	}
	responseIDs, err := b.Tokenizer.EncodeBatch(responses, b.MaxLength, true)
	if err != nil {
		return nil, fmt.Errorf("%w: responses: %w", ErrTokenization, err)
	}
	if len(prefixIDs) != len(records) || len(responseIDs) != len(records) {
		return nil, fmt.Errorf("%w: %d records, %d prompts, %d responses encoded",
			ErrShapeInvariant, len(records), len(prefixIDs), len(responseIDs))
	}

	eos := b.Tokenizer.EOSID()
	out := make([]EncodedExample, len(records))
	for i := range records {
		ex := compose(prefixIDs[i], responseIDs[i], eos)
		if len(ex.TokenIDs) != len(ex.LabelIDs) {
			return nil, fmt.Errorf("%w: record %d has %d tokens and %d labels",
				ErrShapeInvariant, i, len(ex.TokenIDs), len(ex.LabelIDs))
		}
		out[i] = ex
	}
	return out, nil
}

func compose(prefix, response []int64, eos int64) EncodedExample {
	n := len(prefix) + len(response) + 1

	tokens := make([]int64, 0, n)
	tokens = append(tokens, prefix...)
	tokens = append(tokens, response...)
	tokens = append(tokens, eos)

	labels := make([]int64, 0, n)
	for range prefix {
		labels = append(labels, IgnoreIndex)
	}
	labels = append(labels, response...)
	labels = append(labels, eos)

	return EncodedExample{TokenIDs: tokens, LabelIDs: labels}
}
