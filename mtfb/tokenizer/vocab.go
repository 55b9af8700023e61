package tokenizer

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Vocab is a whitespace tokenizer over a fixed vocabulary. Words missing
// from the vocabulary map to the unk id. No special tokens are added.
type Vocab struct {
	vocab map[string]int64
	unkID int64
	padID int64
	eosID int64
}

// LoadVocab reads a one-token-per-line vocabulary; ids follow line order
// with blank lines skipped.
func LoadVocab(cfg Config) (*Vocab, error) {
	path := cfg.Path
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, "vocab.txt")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: vocab %s: %w", ErrUnsupported, path, err)
	}
	defer f.Close()

	var tokens []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tok := strings.TrimSpace(scanner.Text())
		if tok == "" {
			continue
		}
		tokens = append(tokens, tok)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vocab %s: %w", path, err)
	}
	return NewVocab(tokens, cfg)
}

// NewVocab builds a Vocab from tokens ordered by id.
func NewVocab(tokens []string, cfg Config) (*Vocab, error) {
	v := &Vocab{vocab: make(map[string]int64, len(tokens))}
	for i, tok := range tokens {
		if _, dup := v.vocab[tok]; !dup {
			v.vocab[tok] = int64(i)
		}
	}

	unk := cfg.UnkToken
	if unk == "" {
		unk = "[UNK]"
	}
	var err error
	if v.unkID, err = v.lookup(-1, unk, "unk"); err != nil {
		return nil, err
	}
	if v.padID, err = v.lookup(cfg.PadID, cfg.PadToken, "pad"); err != nil {
		return nil, err
	}
	if v.eosID, err = v.lookup(cfg.EOSID, cfg.EOSToken, "eos"); err != nil {
		return nil, err
	}
	return v, nil
}

func (v *Vocab) lookup(id int64, token, role string) (int64, error) {
	if id >= 0 {
		return id, nil
	}
	if tid, ok := v.vocab[token]; ok {
		return tid, nil
	}
	return 0, fmt.Errorf("%w: %s token %q not in vocabulary", ErrUnsupported, role, token)
}

// Size is the number of distinct tokens.
func (v *Vocab) Size() int { return len(v.vocab) }

// ID returns the id of tok and whether it is in the vocabulary.
func (v *Vocab) ID(tok string) (int64, bool) {
	id, ok := v.vocab[tok]
	return id, ok
}

func (v *Vocab) PadID() int64 { return v.padID }

func (v *Vocab) EOSID() int64 { return v.eosID }

func (v *Vocab) EncodeBatch(texts []string, maxLength int, truncate bool) ([][]int64, error) {
	out := make([][]int64, len(texts))
	for i, txt := range texts {
		if !utf8.ValidString(txt) {
			return nil, fmt.Errorf("%w: text %d is not valid UTF-8", ErrInvalidText, i)
		}
		words := strings.Fields(txt)
		seq := make([]int64, 0, len(words))
		for _, w := range words {
			id, ok := v.vocab[w]
			if !ok {
				id = v.unkID
			}
			seq = append(seq, id)
		}
		out[i] = clip(seq, maxLength, truncate)
	}
	return out, nil
}
