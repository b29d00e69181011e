package model

import "encoding/json"

// ExtractedBlock is a provider-reported content unit before persistence.
type ExtractedBlock struct {
	Type       BlockType `json:"type"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
}

type ExtractedPage struct {
	Index  int              `json:"index"`
	Text   string           `json:"text"`
	Blocks []ExtractedBlock `json:"blocks,omitempty"`
}

type ExtractedTable struct {
	Page   int        `json:"page"`
	Header [][]string `json:"header"`
	Body   [][]string `json:"body"`
}

// ExtractionResult is the normalized output of any extraction provider.
type ExtractionResult struct {
	Provider   string           `json:"provider"`
	Pages      []ExtractedPage  `json:"pages"`
	Tables     []ExtractedTable `json:"tables,omitempty"`
	Confidence float64          `json:"confidence"`
	Raw        json.RawMessage  `json:"-"`
}

// Text joins page texts in page order.
func (r *ExtractionResult) Text() string {
	var n int
	for _, p := range r.Pages {
		n += len(p.Text) + 2
	}
	buf := make([]byte, 0, n)
	for i, p := range r.Pages {
		if p.Text == "" {
			continue
		}
		if i > 0 && len(buf) > 0 {
			buf = append(buf, '\n', '\n')
		}
		buf = append(buf, p.Text...)
	}
	return string(buf)
}

// TableText renders a table as pipe-joined rows under a [Table] marker.
func (t ExtractedTable) TableText() string {
	rows := append(append([][]string(nil), t.Header...), t.Body...)
	if len(rows) == 0 {
		return ""
	}
	out := "[Table]"
	for _, r := range rows {
		out += "\n" + joinCells(r)
	}
	return out
}

func joinCells(cells []string) string {
	s := ""
	for i, c := range cells {
		if i > 0 {
			s += " | "
		}
		s += c
	}
	return s
}
