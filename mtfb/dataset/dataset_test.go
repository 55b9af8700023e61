package dataset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/mt-feedback/mtfb/record"
	"github.com/ZanzyTHEbar/mt-feedback/mtfb/sft"
	"github.com/ZanzyTHEbar/mt-feedback/mtfb/tokenizer"

	roaring "github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrompt = "<srctext> translate to English: <tgttext>"

func newBuilder(t *testing.T) *sft.Builder {
	t.Helper()
	words := []string{"<pad>", "</s>", "[UNK]", "translate", "to", "English:", "Type:", "Severity:", "Reason:"}
	tok, err := tokenizer.NewVocab(words, tokenizer.Config{PadToken: "<pad>", EOSToken: "</s>", PadID: -1, EOSID: -1})
	require.NoError(t, err)
	return sft.NewBuilder(sft.Template(testPrompt), tok, 64)
}

// makeRecords gives record i exactly i+1 source words so examples can be
// told apart by length.
func makeRecords(n int) []record.RawRecord {
	out := make([]record.RawRecord, n)
	for i := range out {
		out[i] = record.RawRecord{
			SourceText:      strings.TrimSpace(strings.Repeat("w ", i+1)),
			TranslationText: "t",
			Errors:          []record.ErrorAnnotation{{Type: "Accuracy", Severity: "Minor", Reason: "r"}},
		}
	}
	return out
}

func TestShards(t *testing.T) {
	assert.Empty(t, shards(0, 4))
	assert.Equal(t, []span{{0, 4}, {4, 8}, {8, 10}}, shards(10, 4))
	assert.Equal(t, []span{{0, 3}}, shards(3, 10))
}

func TestBuildPreservesOrderAcrossShards(t *testing.T) {
	b := newBuilder(t)
	records := makeRecords(23)

	ds, err := Build(context.Background(), "train", b, records, Options{Workers: 4, ShardSize: 5})
	require.NoError(t, err)
	require.Equal(t, 23, ds.Len())
	assert.NotEmpty(t, ds.RunID.String())
	assert.True(t, ds.Dropped.IsEmpty())

	want, err := b.Build(records)
	require.NoError(t, err)
	assert.Equal(t, want, ds.Examples)

	tokens := 0
	for _, ex := range want {
		tokens += ex.Len()
	}
	assert.Equal(t, tokens, ds.Tokens())
}

func TestBuildEmpty(t *testing.T) {
	ds, err := Build(context.Background(), "empty", newBuilder(t), nil, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, ds.Len())
}

func TestBuildAbortsOnFailure(t *testing.T) {
	records := makeRecords(12)
	records[7].Errors[0].Reason = "\xff"

	ds, err := Build(context.Background(), "train", newBuilder(t), records, Options{Workers: 2, ShardSize: 3})
	require.Error(t, err)
	assert.Nil(t, ds)
	assert.ErrorIs(t, err, sft.ErrTokenization)
	assert.Contains(t, err.Error(), "shard 2")
}

func TestBuildSkipMalformedDropsOnlyFailingRecords(t *testing.T) {
	records := makeRecords(12)
	records[4].SourceText = "\xff"
	records[10].Errors[0].Type = "\xfe"

	ds, err := Build(context.Background(), "train", newBuilder(t), records, Options{Workers: 3, ShardSize: 4, SkipMalformed: true})
	require.NoError(t, err)
	assert.Equal(t, 10, ds.Len())
	assert.Equal(t, []uint32{4, 10}, ds.Dropped.ToArray())

	// Surviving examples stay in record order: lengths grow with the index.
	for i := 1; i < ds.Len(); i++ {
		assert.Greater(t, ds.Examples[i].Len(), ds.Examples[i-1].Len())
	}
}

func TestBuildRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Build(ctx, "train", newBuilder(t), makeRecords(8), Options{Workers: 1, ShardSize: 2})
	assert.ErrorIs(t, err, context.Canceled)
}

func writeSplit(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "split.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func line(src string) string {
	return fmt.Sprintf(`{"src_text":%q,"bad_translation":"t","explanations":[{"type":"Accuracy","severity":"Major","reason":"r"}]}`, src)
}

func TestLoad(t *testing.T) {
	path := writeSplit(t, line("a"), line("a b"), line("a b c"))

	ds, err := Load(context.Background(), path, newBuilder(t), Options{Workers: 2, ShardSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())
	assert.Equal(t, path, ds.Name)
	assert.True(t, ds.Rejected.IsEmpty())
}

func TestLoadMalformedLines(t *testing.T) {
	path := writeSplit(t, line("a"), `{"src_text":"a"}`, line("a b"), `not json`)

	_, err := Load(context.Background(), path, newBuilder(t), Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, record.ErrMalformedRecord)

	ds, err := Load(context.Background(), path, newBuilder(t), Options{SkipMalformed: true})
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, []uint32{2, 4}, ds.Rejected.ToArray())
}

// refusing fails any batch containing the word boom.
type refusing struct{ tokenizer.Tokenizer }

func (r refusing) EncodeBatch(texts []string, maxLength int, truncate bool) ([][]int64, error) {
	for i, txt := range texts {
		if strings.Contains(txt, "boom") {
			return nil, fmt.Errorf("text %d refused", i)
		}
	}
	return r.Tokenizer.EncodeBatch(texts, maxLength, truncate)
}

func TestLoadReportsDroppedByLine(t *testing.T) {
	path := writeSplit(t, line("a"), `{"src_text":"a"}`, line("boom"), "", line("a b"), line("boom boom"))
	base := newBuilder(t)
	b := sft.NewBuilder(base.Template, refusing{base.Tokenizer}, base.MaxLength)

	ds, err := Load(context.Background(), path, b, Options{Workers: 2, ShardSize: 2, SkipMalformed: true})
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, []uint32{2}, ds.Rejected.ToArray())
	assert.Equal(t, []uint32{3, 6}, ds.Dropped.ToArray())
}

func TestToLines(t *testing.T) {
	got := toLines(roaring.BitmapOf(0, 2), []int{4, 7, 9})
	assert.Equal(t, []uint32{4, 9}, got.ToArray())
	assert.True(t, toLines(roaring.New(), nil).IsEmpty())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "nope.jsonl"), newBuilder(t), Options{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}
