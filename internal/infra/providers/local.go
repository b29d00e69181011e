package providers

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"document-intelligence/internal/domain/model"
	"document-intelligence/internal/domain/ports/adapter"
)

var _ adapter.LayoutProvider = (*LocalParser)(nil)

const (
	confidencePDFScan    = 0.2
	confidenceStructured = 0.95
	confidenceTable      = 0.9
	confidenceSheet      = 0.9
	confidenceRawScan    = 0.1
)

// LocalParser is the last link of the provider chain. Extract never returns
// an error: every input yields a result, possibly empty, at low confidence.
type LocalParser struct {
	logger *zerolog.Logger
}

func NewLocalParser(logger *zerolog.Logger) *LocalParser {
	return &LocalParser{logger: logger}
}

func (p *LocalParser) Name() string { return model.ProviderFallback }

func (p *LocalParser) Extract(_ context.Context, req adapter.ExtractionRequest) (*model.ExtractionResult, error) {
	ft := model.DetectFileType(req.FileName, req.MimeType)
	var (
		res *model.ExtractionResult
		err error
	)
	switch ft {
	case model.FileTypePDF:
		res = parsePDF(req.Data, req.PageStart, req.PageEnd)
	case model.FileTypeDOCX:
		res, err = parseDOCX(req.Data)
	case model.FileTypePPTX:
		res, err = parsePPTX(req.Data)
	case model.FileTypeXLSX:
		res, err = parseXLSX(req.Data)
	case model.FileTypeTXT:
		res = parseText(req.Data)
	}
	if err != nil {
		p.logger.Warn().Err(err).Str("file_type", string(ft)).Msg("structured local parse failed, scanning raw bytes")
		res = nil
	}
	if res == nil {
		res = scanPrintable(req.Data)
	}
	res.Provider = p.Name()
	return res, nil
}

// DecodeText decodes plain text as UTF-8, falling back to Latin-1.
func DecodeText(data []byte) string {
	data = []byte(strings.TrimPrefix(string(data), "\ufeff"))
	if utf8.Valid(data) {
		return string(data)
	}
	var b strings.Builder
	b.Grow(len(data))
	for _, c := range data {
		b.WriteRune(rune(c))
	}
	return b.String()
}

func parseText(data []byte) *model.ExtractionResult {
	text := DecodeText(data)
	return &model.ExtractionResult{
		Pages: []model.ExtractedPage{{
			Index:  1,
			Text:   text,
			Blocks: []model.ExtractedBlock{{Type: model.BlockParagraph, Text: text, Confidence: 1.0}},
		}},
		Confidence: 1.0,
	}
}

// scanPrintable keeps runs of at least four printable ASCII characters that
// contain a letter.
func scanPrintable(data []byte) *model.ExtractionResult {
	var (
		runs []string
		cur  []byte
	)
	flush := func() {
		if len(cur) >= 4 && hasLetter(string(cur)) {
			runs = append(runs, strings.TrimSpace(string(cur)))
		}
		cur = cur[:0]
	}
	for _, c := range data {
		if c >= 32 && c <= 126 {
			cur = append(cur, c)
			continue
		}
		flush()
	}
	flush()
	text := strings.Join(runs, " ")
	return &model.ExtractionResult{
		Pages:      []model.ExtractedPage{{Index: 1, Text: text}},
		Confidence: confidenceRawScan,
	}
}

func hasLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 32 || s[i] > 126 {
			return false
		}
	}
	return true
}
