package tokenizer

import (
	"errors"
	"fmt"
	"strings"
)

// Tokenizer turns text into token id sequences without padding. maxLength
// is only applied when truncate is set; content ids are trimmed from the
// end and special tokens added by the tokenizer are kept.
type Tokenizer interface {
	EncodeBatch(texts []string, maxLength int, truncate bool) ([][]int64, error)
	PadID() int64
	EOSID() int64
}

// Kinds accepted by New
const (
	KindPretrained = "pretrained"
	KindWordPiece  = "wordpiece"
	KindVocab      = "vocab"
)

// Config selects and parameterizes a tokenizer implementation.
// PadID/EOSID win over PadToken/EOSToken when non-negative.
type Config struct {
	Kind             string
	Path             string
	UnkToken         string
	PadToken         string
	EOSToken         string
	PadID            int64
	EOSID            int64
	AddSpecialTokens bool
}

var (
	// ErrUnsupported indicates the tokenizer could not be initialized
	ErrUnsupported = errors.New("unsupported tokenizer configuration")
	// ErrInvalidText is returned for input the tokenizer cannot encode
	ErrInvalidText = errors.New("invalid text")
)

// New builds the tokenizer named by cfg.Kind.
func New(cfg Config) (Tokenizer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case KindPretrained, "":
		return LoadPretrained(cfg)
	case KindWordPiece:
		return LoadWordPiece(cfg)
	case KindVocab:
		return LoadVocab(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrUnsupported, cfg.Kind)
	}
}

func clip[T int | int64](ids []T, maxLength int, truncate bool) []int64 {
	n := len(ids)
	if truncate && maxLength >= 0 && n > maxLength {
		n = maxLength
	}
	out := make([]int64, n)
	for i := 0; i < n; i++ {
		out[i] = int64(ids[i])
	}
	return out
}
