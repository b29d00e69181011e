package providers

import (
	"bytes"
	"compress/zlib"
	"io"
	"regexp"
	"strings"
	"unicode/utf16"

	"document-intelligence/internal/domain/model"
)

var (
	streamRe    = regexp.MustCompile(`(?s)stream\r?\n(.*?)\r?\nendstream`)
	literalRe   = regexp.MustCompile(`\(((?:\\.|[^\\()])*)\)`)
	hexStringRe = regexp.MustCompile(`<([0-9A-Fa-f]{8,})>`)
	showTextRe  = regexp.MustCompile(`(?s)(\((?:\\.|[^\\()])*\)|<[0-9A-Fa-f]+>)\s*Tj|\[((?:[^\]\\]|\\.)*)\]\s*TJ`)
)

// parsePDF scans text streams for string literals. Without a page tree the
// fragments are split across the estimated page count so that a page range
// request gets a proportional, non-overlapping slice.
func parsePDF(data []byte, pageStart, pageEnd int) *model.ExtractionResult {
	frags := pdfFragments(data)

	total := EstimatePageCount(data)
	if total < pageEnd {
		total = pageEnd
	}
	if total < 1 {
		total = 1
	}
	start, end := pageStart, pageEnd
	if start <= 0 {
		start, end = 1, total
	}
	lo := (start - 1) * len(frags) / total
	hi := end * len(frags) / total
	if hi > len(frags) {
		hi = len(frags)
	}
	text := strings.Join(frags[lo:hi], " ")

	return &model.ExtractionResult{
		Pages:      []model.ExtractedPage{{Index: start, Text: text}},
		Confidence: confidencePDFScan,
	}
}

func pdfFragments(data []byte) []string {
	var frags []string
	for _, m := range streamRe.FindAllSubmatch(data, -1) {
		content := m[1]
		if inflated, err := inflate(content); err == nil {
			content = inflated
		}
		frags = append(frags, showTextFragments(content)...)
	}
	if len(frags) > 0 {
		return dedupeAdjacent(frags)
	}

	// No decodable content streams: fall back to every literal in the file.
	for _, m := range literalRe.FindAllSubmatch(data, -1) {
		if s, ok := keepLiteral(unescapeLiteral(m[1])); ok {
			frags = append(frags, s)
		}
	}
	for _, m := range hexStringRe.FindAllSubmatch(data, -1) {
		if s, ok := keepLiteral(decodeHexUTF16(string(m[1]))); ok {
			frags = append(frags, s)
		}
	}
	return dedupeAdjacent(frags)
}

// showTextFragments collects the operands of Tj and TJ in a content stream.
func showTextFragments(content []byte) []string {
	var out []string
	for _, m := range showTextRe.FindAllSubmatch(content, -1) {
		var parts [][]byte
		if len(m[1]) > 0 {
			parts = [][]byte{m[1]}
		} else {
			for _, lit := range literalRe.FindAll(m[2], -1) {
				parts = append(parts, lit)
			}
			for _, hx := range hexStringRe.FindAll(m[2], -1) {
				parts = append(parts, hx)
			}
		}
		var b strings.Builder
		for _, p := range parts {
			switch p[0] {
			case '(':
				b.WriteString(unescapeLiteral(p[1 : len(p)-1]))
			case '<':
				b.WriteString(decodeHexUTF16(string(p[1 : len(p)-1])))
			}
		}
		if s, ok := keepLiteral(b.String()); ok {
			out = append(out, s)
		}
	}
	return out
}

func keepLiteral(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) <= 1 || !isPrintableASCII(s) || !hasLetter(s) {
		return "", false
	}
	return s, true
}

func inflate(b []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(io.LimitReader(r, 32<<20))
}

func unescapeLiteral(b []byte) string {
	var out strings.Builder
	for i := 0; i < len(b); i++ {
		c := b[i]
		if c != '\\' || i+1 >= len(b) {
			out.WriteByte(c)
			continue
		}
		i++
		switch b[i] {
		case 'n':
			out.WriteByte('\n')
		case 'r':
			out.WriteByte('\r')
		case 't':
			out.WriteByte('\t')
		case '(', ')', '\\':
			out.WriteByte(b[i])
		default:
			out.WriteByte(b[i])
		}
	}
	return out.String()
}

// decodeHexUTF16 reads groups of four hex digits as UTF-16BE code units.
func decodeHexUTF16(h string) string {
	units := make([]uint16, 0, len(h)/4)
	for i := 0; i+4 <= len(h); i += 4 {
		var u uint16
		for _, c := range h[i : i+4] {
			u <<= 4
			switch {
			case c >= '0' && c <= '9':
				u |= uint16(c - '0')
			case c >= 'a' && c <= 'f':
				u |= uint16(c-'a') + 10
			case c >= 'A' && c <= 'F':
				u |= uint16(c-'A') + 10
			}
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}

func dedupeAdjacent(in []string) []string {
	out := make([]string, 0, len(in))
	for i, s := range in {
		if i > 0 && s == in[i-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}
