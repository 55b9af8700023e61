package sft

import "errors"

var (
	// ErrTokenization wraps a failure of the tokenizer capability.
	ErrTokenization = errors.New("tokenization failed")
	// ErrShapeInvariant means token and label sequences disagree in length.
	// It indicates a logic defect and must never be corrected silently.
	ErrShapeInvariant = errors.New("token/label shape invariant violated")
	// ErrEmptyBatch is returned when collating zero examples.
	ErrEmptyBatch = errors.New("cannot collate an empty batch")
)
