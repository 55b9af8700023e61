// Package record defines the annotated translation records consumed by the
// example builder and decodes them from line-delimited JSON.
package record

// ErrorAnnotation is one structured error found in a translation.
type ErrorAnnotation struct {
	Type     string
	Severity string
	Reason   string
}

// RawRecord is a source sentence, its flawed translation and the ordered
// annotations describing what is wrong with it.
type RawRecord struct {
	SourceText      string
	TranslationText string
	Errors          []ErrorAnnotation
}

// Wire shapes. Pointers distinguish a missing field from an empty string.
type wireAnnotation struct {
	Type     *string `json:"type" validate:"required"`
	Severity *string `json:"severity" validate:"required"`
	Reason   *string `json:"reason" validate:"required"`
}

type wireRecord struct {
	SrcText        *string          `json:"src_text" validate:"required"`
	BadTranslation *string          `json:"bad_translation" validate:"required"`
	Explanations   []wireAnnotation `json:"explanations" validate:"required,dive"`
}

func (w *wireRecord) toRecord() RawRecord {
	rec := RawRecord{
		SourceText:      *w.SrcText,
		TranslationText: *w.BadTranslation,
		Errors:          make([]ErrorAnnotation, len(w.Explanations)),
	}
	for i, e := range w.Explanations {
		rec.Errors[i] = ErrorAnnotation{Type: *e.Type, Severity: *e.Severity, Reason: *e.Reason}
	}
	return rec
}
