package providers

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"document-intelligence/internal/domain/model"
)

const maxZipEntry = 64 << 20

func openZip(data []byte) (*zip.Reader, error) {
	return zip.NewReader(bytes.NewReader(data), int64(len(data)))
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(io.LimitReader(rc, maxZipEntry))
	}
	return nil, fmt.Errorf("zip entry %s not found", name)
}

// ooxmlBody is the paragraphs and tables of one OOXML text body, in order.
type ooxmlBody struct {
	blocks []model.ExtractedBlock
	tables [][][]string
}

// walkOOXML streams a WordprocessingML or DrawingML part. Both use p/t for
// paragraphs and tbl/tr/tc for tables; only local names are compared.
func walkOOXML(data []byte) (*ooxmlBody, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	body := &ooxmlBody{}

	var (
		para      strings.Builder
		inText    bool
		heading   bool
		tblDepth  int
		table     [][]string
		row       []string
		cell      strings.Builder
		cellParas []string
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tblDepth++
				if tblDepth == 1 {
					table = nil
				}
			case "tr":
				if tblDepth == 1 {
					row = nil
				}
			case "tc":
				if tblDepth == 1 {
					cellParas = nil
				}
			case "p":
				para.Reset()
				heading = false
			case "pStyle":
				for _, a := range t.Attr {
					if a.Name.Local == "val" && strings.HasPrefix(strings.ToLower(a.Value), "heading") {
						heading = true
					}
				}
			case "t":
				inText = true
			case "tab":
				para.WriteByte('\t')
			case "br":
				para.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				text := strings.TrimSpace(para.String())
				if text == "" {
					continue
				}
				if tblDepth > 0 {
					cellParas = append(cellParas, text)
					continue
				}
				if heading {
					text = "## " + text
				}
				body.blocks = append(body.blocks, model.ExtractedBlock{Type: model.BlockParagraph, Text: text, Confidence: confidenceStructured})
			case "tc":
				if tblDepth == 1 {
					cell.Reset()
					cell.WriteString(strings.Join(cellParas, " "))
					row = append(row, cell.String())
				}
			case "tr":
				if tblDepth == 1 {
					table = append(table, row)
				}
			case "tbl":
				tblDepth--
				if tblDepth == 0 && len(table) > 0 {
					body.tables = append(body.tables, table)
					tt := model.ExtractedTable{Header: table[:1], Body: table[1:]}
					body.blocks = append(body.blocks, model.ExtractedBlock{Type: model.BlockTable, Text: tt.TableText(), Confidence: confidenceTable})
				}
			}
		}
	}
	return body, nil
}

func joinBlocks(blocks []model.ExtractedBlock) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, b.Text)
	}
	return strings.Join(parts, "\n\n")
}

// parseDOCX reports the whole document as page 1: the format has no pages.
func parseDOCX(data []byte) (*model.ExtractionResult, error) {
	zr, err := openZip(data)
	if err != nil {
		return nil, err
	}
	xmlData, err := readZipFile(zr, "word/document.xml")
	if err != nil {
		return nil, err
	}
	body, err := walkOOXML(xmlData)
	if err != nil {
		return nil, err
	}
	res := &model.ExtractionResult{
		Pages:      []model.ExtractedPage{{Index: 1, Text: joinBlocks(body.blocks), Blocks: body.blocks}},
		Confidence: confidenceStructured,
	}
	for _, t := range body.tables {
		res.Tables = append(res.Tables, model.ExtractedTable{Page: 1, Header: t[:1], Body: t[1:]})
	}
	return res, nil
}

var slideName = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

type relationships struct {
	Rels []struct {
		Type   string `xml:"Type,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// parsePPTX yields one page per slide, with tables and speaker notes.
func parsePPTX(data []byte) (*model.ExtractionResult, error) {
	zr, err := openZip(data)
	if err != nil {
		return nil, err
	}
	type slide struct {
		n    int
		name string
	}
	var slides []slide
	for _, f := range zr.File {
		if m := slideName.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slide{n: n, name: f.Name})
		}
	}
	if len(slides) == 0 {
		return nil, fmt.Errorf("pptx: no slides")
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	res := &model.ExtractionResult{Confidence: confidenceStructured}
	for i, s := range slides {
		page := i + 1
		xmlData, err := readZipFile(zr, s.name)
		if err != nil {
			return nil, err
		}
		body, err := walkOOXML(xmlData)
		if err != nil {
			return nil, err
		}
		blocks := body.blocks
		if notes := slideNotes(zr, s.name); notes != "" {
			blocks = append(blocks, model.ExtractedBlock{Type: model.BlockParagraph, Text: "[Speaker Notes]\n" + notes, Confidence: confidenceStructured})
		}
		res.Pages = append(res.Pages, model.ExtractedPage{Index: page, Text: joinBlocks(blocks), Blocks: blocks})
		for _, t := range body.tables {
			res.Tables = append(res.Tables, model.ExtractedTable{Page: page, Header: t[:1], Body: t[1:]})
		}
	}
	return res, nil
}

// slideNotes follows the slide's relationship to its notes part.
func slideNotes(zr *zip.Reader, slidePath string) string {
	relsPath := path.Join(path.Dir(slidePath), "_rels", path.Base(slidePath)+".rels")
	raw, err := readZipFile(zr, relsPath)
	if err != nil {
		return ""
	}
	var rels relationships
	if err := xml.Unmarshal(raw, &rels); err != nil {
		return ""
	}
	for _, r := range rels.Rels {
		if !strings.HasSuffix(r.Type, "/notesSlide") {
			continue
		}
		notesXML, err := readZipFile(zr, path.Join(path.Dir(slidePath), r.Target))
		if err != nil {
			return ""
		}
		body, err := walkOOXML(notesXML)
		if err != nil {
			return ""
		}
		var lines []string
		for _, b := range body.blocks {
			// slide number placeholders
			if _, err := strconv.Atoi(b.Text); err == nil {
				continue
			}
			lines = append(lines, b.Text)
		}
		return strings.Join(lines, "\n")
	}
	return ""
}

// parseXLSX yields one page per sheet.
func parseXLSX(data []byte) (*model.ExtractionResult, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	res := &model.ExtractionResult{Confidence: confidenceSheet}
	for i, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, err
		}
		page := i + 1
		var nonEmpty [][]string
		for _, r := range rows {
			if strings.TrimSpace(strings.Join(r, "")) != "" {
				nonEmpty = append(nonEmpty, r)
			}
		}
		ep := model.ExtractedPage{Index: page}
		if len(nonEmpty) > 0 {
			t := model.ExtractedTable{Page: page, Header: nonEmpty[:1], Body: nonEmpty[1:]}
			res.Tables = append(res.Tables, t)
			ep.Text = "[Sheet] " + sheet + "\n" + strings.TrimPrefix(t.TableText(), "[Table]\n")
			ep.Blocks = []model.ExtractedBlock{{Type: model.BlockTable, Text: t.TableText(), Confidence: confidenceSheet}}
		}
		res.Pages = append(res.Pages, ep)
	}
	return res, nil
}
