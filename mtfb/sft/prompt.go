package sft

import (
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/mt-feedback/mtfb/record"
)

// Template markers
const (
	SourceMarker      = "<srctext>"
	TranslationMarker = "<tgttext>"
	SrcLangMarker     = "<srclang>"
	TgtLangMarker     = "<tgtlang>"
)

// Template is a prompt with source and translation markers.
type Template string

// ParseTemplate expands the optional language markers and reports which of
// the two text markers the prompt lacks. A missing marker is not an error:
// the text is simply not placed in the prompt.
func ParseTemplate(prompt, srcLang, tgtLang string) (Template, []string) {
	prompt = strings.ReplaceAll(prompt, SrcLangMarker, srcLang)
	prompt = strings.ReplaceAll(prompt, TgtLangMarker, tgtLang)
	t := Template(prompt)
	return t, t.Missing()
}

// Missing lists the text markers not present in t.
func (t Template) Missing() []string {
	var missing []string
	for _, m := range []string{SourceMarker, TranslationMarker} {
		if !strings.Contains(string(t), m) {
			missing = append(missing, m)
		}
	}
	return missing
}

// Render replaces the source marker, then the translation marker, in that
// order. Source text that itself contains the translation marker is
// therefore substituted too.
func (t Template) Render(source, translation string) string {
	s := strings.ReplaceAll(string(t), SourceMarker, source)
	return strings.ReplaceAll(s, TranslationMarker, translation)
}

// RenderPrefix builds the prompt string for rec.
func RenderPrefix(t Template, rec record.RawRecord) string {
	return t.Render(rec.SourceText, rec.TranslationText)
}

// RenderResponse serializes the annotations of rec, one line each, in order.
func RenderResponse(rec record.RawRecord) string {
	var sb strings.Builder
	for _, e := range rec.Errors {
		fmt.Fprintf(&sb, "Type: %s; Severity: %s; Reason: %s\n", e.Type, e.Severity, e.Reason)
	}
	return sb.String()
}
