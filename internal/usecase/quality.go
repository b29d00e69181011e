package usecase

import (
	"strings"
	"unicode"

	"document-intelligence/internal/domain/model"
)

const (
	poorMinLength       = 30
	poorPrintableRatio  = 0.85
	minPageConfidence   = 0.05
	maxPageConfidence   = 0.95
	ocrMinConfidence    = 0.7
	tableMinSeparators  = 4
	defaultTableMinText = 40
)

// PageQuality is the text quality assessment of one page.
type PageQuality struct {
	Text           string
	PrintableRatio float64
	GarbageRatio   float64
	Poor           bool
}

// CleanText collapses runs of whitespace while keeping line breaks.
func CleanText(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.Join(strings.Fields(l), " ")
		if l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// AssessText computes printable and garbage ratios over the cleaned text.
func AssessText(raw string) PageQuality {
	text := CleanText(raw)
	q := PageQuality{Text: text}
	var total, printable, garbage int
	for _, r := range text {
		total++
		switch {
		case r == unicode.ReplacementChar,
			unicode.Is(unicode.Co, r),
			unicode.IsControl(r) && r != '\n' && r != '\t':
			garbage++
		case unicode.IsPrint(r) || r == '\n' || r == '\t':
			printable++
		}
	}
	if total > 0 {
		q.PrintableRatio = float64(printable) / float64(total)
		q.GarbageRatio = float64(garbage) / float64(total)
	}
	q.Poor = len([]rune(text)) < poorMinLength || q.PrintableRatio < poorPrintableRatio
	return q
}

// ResolveKind classifies a page from its native text and image presence.
func ResolveKind(text string, hasImages bool) model.PageKind {
	switch {
	case strings.TrimSpace(text) != "":
		return model.PageKindText
	case hasImages:
		return model.PageKindScanned
	default:
		return model.PageKindBlank
	}
}

// PageConfidence is clamp(0.05, 0.95, printable-garbage), raised to at
// least 0.7 when OCR text replaced the native text.
func PageConfidence(q PageQuality, ocrUsed bool) float64 {
	c := q.PrintableRatio - q.GarbageRatio
	if c < minPageConfidence {
		c = minPageConfidence
	}
	if c > maxPageConfidence {
		c = maxPageConfidence
	}
	if ocrUsed && c < ocrMinConfidence {
		c = ocrMinConfidence
	}
	return c
}

// LooksLikeTable applies the pipe/tab heuristic to a sufficiently long blob.
func LooksLikeTable(text string, minLength int) bool {
	if minLength <= 0 {
		minLength = defaultTableMinText
	}
	if len(text) < minLength {
		return false
	}
	return strings.Count(text, "|") >= tableMinSeparators || strings.Count(text, "\t") >= tableMinSeparators
}
