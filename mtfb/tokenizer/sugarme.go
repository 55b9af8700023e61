package tokenizer

import (
	"fmt"
	"os"
	"path/filepath"

	tk "github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/model/wordpiece"
	"github.com/sugarme/tokenizer/normalizer"
	"github.com/sugarme/tokenizer/pretokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	"github.com/sugarme/tokenizer/processor"
)

// Pretrained wraps a sugarme/tokenizer pipeline. Content is truncated
// before post-processing so the special tokens survive, and one instance
// serves any max length. Truncation and padding settings stored in a
// tokenizer.json are not applied.
type Pretrained struct {
	t          *tk.Tokenizer
	padID      int64
	eosID      int64
	addSpecial bool
	// number of ids the post-processor adds to a single sequence
	added int
}

// LoadPretrained loads a HuggingFace tokenizer.json. A directory path is
// resolved to <dir>/tokenizer.json.
func LoadPretrained(cfg Config) (*Pretrained, error) {
	path := cfg.Path
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, "tokenizer.json")
	}
	t, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %w", ErrUnsupported, path, err)
	}
	return newPretrained(t, cfg)
}

// LoadWordPiece builds a BERT-style WordPiece tokenizer from vocab.txt.
func LoadWordPiece(cfg Config) (*Pretrained, error) {
	vocabFile := cfg.Path
	if fi, err := os.Stat(vocabFile); err == nil && fi.IsDir() {
		vocabFile = filepath.Join(vocabFile, "vocab.txt")
	}
	if _, err := os.Stat(vocabFile); err != nil {
		return nil, fmt.Errorf("%w: vocab %s: %w", ErrUnsupported, vocabFile, err)
	}
	unk := cfg.UnkToken
	if unk == "" {
		unk = "[UNK]"
	}

	var wp wordpiece.WordPiece
	if nw, err := wordpiece.NewWordPieceFromFile(vocabFile, unk); err == nil {
		wp = nw
	} else {
		wp = wordpiece.NewWordPieceBuilder().Files(vocabFile).Build()
	}

	t := tk.NewTokenizer(wp)
	t.WithNormalizer(normalizer.NewBertNormalizer(true, true, true, true))
	t.WithPreTokenizer(pretokenizer.NewBertPreTokenizer())

	clsID, okCLS := t.TokenToId("[CLS]")
	sepID, okSEP := t.TokenToId("[SEP]")
	if okCLS && okSEP {
		t.WithPostProcessor(processor.NewBertProcessing(
			processor.PostToken{Value: "[SEP]", Id: sepID},
			processor.PostToken{Value: "[CLS]", Id: clsID},
		))
	}
	return newPretrained(t, cfg)
}

func newPretrained(t *tk.Tokenizer, cfg Config) (*Pretrained, error) {
	padID, err := resolveID(t, cfg.PadID, cfg.PadToken, "pad")
	if err != nil {
		return nil, err
	}
	eosID, err := resolveID(t, cfg.EOSID, cfg.EOSToken, "eos")
	if err != nil {
		return nil, err
	}
	p := &Pretrained{t: t, padID: padID, eosID: eosID, addSpecial: cfg.AddSpecialTokens}
	if pp := t.GetPostProcessor(); pp != nil && p.addSpecial {
		p.added = pp.AddedTokens(false)
	}
	return p, nil
}

func resolveID(t *tk.Tokenizer, id int64, token, role string) (int64, error) {
	if id >= 0 {
		return id, nil
	}
	if token == "" {
		return 0, fmt.Errorf("%w: no %s id or token configured", ErrUnsupported, role)
	}
	v, ok := t.TokenToId(token)
	if !ok {
		return 0, fmt.Errorf("%w: %s token %q not in vocabulary", ErrUnsupported, role, token)
	}
	return int64(v), nil
}

func (p *Pretrained) PadID() int64 { return p.padID }

func (p *Pretrained) EOSID() int64 { return p.eosID }

// Specials reports how many ids post-processing adds to each sequence.
func (p *Pretrained) Specials() int { return p.added }

func (p *Pretrained) EncodeBatch(texts []string, maxLength int, truncate bool) ([][]int64, error) {
	out := make([][]int64, len(texts))
	for i, txt := range texts {
		enc, err := p.encode(txt, maxLength, truncate)
		if err != nil {
			return nil, fmt.Errorf("encode text %d: %w", i, err)
		}
		out[i] = clip(enc.GetIds(), maxLength, truncate)
	}
	return out, nil
}

// encode mirrors tk.Tokenizer.Encode for a single sequence, with the
// content trimmed to maxLength minus the post-processor's specials.
func (p *Pretrained) encode(txt string, maxLength int, truncate bool) (*tk.Encoding, error) {
	enc, err := p.t.EncodeSingleSequence(tk.NewInputSequence(txt), 0, tk.Byte)
	if err != nil {
		return nil, err
	}
	if budget := maxLength - p.added; truncate && maxLength >= 0 && enc.Len() > budget {
		if budget <= 0 {
			enc = tk.DefaultEncoding()
		} else if enc, err = enc.Truncate(budget, 0); err != nil {
			return nil, err
		}
	}
	if pp := p.t.GetPostProcessor(); pp != nil {
		return pp.Process(enc, nil, p.addSpecial), nil
	}
	return tk.DefaultProcess(enc, nil, p.addSpecial), nil
}
