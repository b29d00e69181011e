package pdftools

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"document-intelligence/internal/domain/ports/adapter"
)

var _ adapter.PDFToolkit = (*Poppler)(nil)

// Poppler implements the PDF toolkit with pdfinfo, pdftotext, pdfimages and
// pdftoppm. Each opened document lives in its own temp directory.
type Poppler struct {
	runner       Runner
	previewWidth int
	tmpDir       string
}

func NewPoppler(runner Runner, previewWidth int) *Poppler {
	if previewWidth <= 0 {
		previewWidth = 900
	}
	return &Poppler{runner: runner, previewWidth: previewWidth}
}

func (p *Poppler) Open(_ context.Context, data []byte) (adapter.PDFDocument, error) {
	dir, err := os.MkdirTemp(p.tmpDir, "pdf-*")
	if err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	return &popplerDoc{p: p, dir: dir, path: path}, nil
}

type popplerDoc struct {
	p    *Poppler
	dir  string
	path string
}

func (d *popplerDoc) PageCount(ctx context.Context) (int, error) {
	out, stderr, err := d.p.runner.Run(ctx, "pdfinfo", d.path)
	if err != nil {
		return 0, fmt.Errorf("pdfinfo: %w: %s", err, truncate(string(stderr), 512))
	}
	return parsePageCount(out)
}

// Text returns one string per page; pdftotext separates pages with form feeds.
func (d *popplerDoc) Text(ctx context.Context, start, end int) ([]string, error) {
	out, stderr, err := d.p.runner.Run(ctx, "pdftotext", "-layout", "-enc", "UTF-8",
		"-f", strconv.Itoa(start), "-l", strconv.Itoa(end), d.path, "-")
	if err != nil {
		return nil, fmt.Errorf("pdftotext: %w: %s", err, truncate(string(stderr), 512))
	}
	return splitPages(string(out), end-start+1), nil
}

func (d *popplerDoc) ImagePages(ctx context.Context, start, end int) (map[int]bool, error) {
	out, stderr, err := d.p.runner.Run(ctx, "pdfimages", "-list",
		"-f", strconv.Itoa(start), "-l", strconv.Itoa(end), d.path)
	if err != nil {
		return nil, fmt.Errorf("pdfimages: %w: %s", err, truncate(string(stderr), 512))
	}
	return parseImageList(out), nil
}

func (d *popplerDoc) Render(ctx context.Context, start, end int) (map[int][]byte, error) {
	outDir, err := os.MkdirTemp(d.dir, "render-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(outDir)

	prefix := filepath.Join(outDir, "page")
	_, stderr, err := d.p.runner.Run(ctx, "pdftoppm", "-jpeg",
		"-scale-to-x", strconv.Itoa(d.p.previewWidth), "-scale-to-y", "-1",
		"-f", strconv.Itoa(start), "-l", strconv.Itoa(end), d.path, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm: %w: %s", err, truncate(string(stderr), 512))
	}
	return collectPages(outDir, ".jpg")
}

func (d *popplerDoc) Close() error { return os.RemoveAll(d.dir) }

var pagesLine = regexp.MustCompile(`(?m)^Pages:\s+(\d+)`)

func parsePageCount(out []byte) (int, error) {
	m := pagesLine.FindSubmatch(out)
	if m == nil {
		return 0, fmt.Errorf("pdfinfo: no page count in output")
	}
	return strconv.Atoi(string(m[1]))
}

func splitPages(text string, want int) []string {
	parts := strings.Split(text, "\f")
	out := make([]string, want)
	for i := 0; i < want && i < len(parts); i++ {
		out[i] = parts[i]
	}
	return out
}

// parseImageList reads `pdfimages -list`: two header lines, then one row per
// image whose first column is the page number.
func parseImageList(out []byte) map[int]bool {
	pages := map[int]bool{}
	sc := bufio.NewScanner(bytes.NewReader(out))
	line := 0
	for sc.Scan() {
		line++
		if line <= 2 {
			continue
		}
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 {
			continue
		}
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		if fields[2] == "image" || fields[2] == "smask" || fields[2] == "stencil" {
			pages[n] = true
		}
	}
	return pages
}

var pageSuffix = regexp.MustCompile(`-(\d+)\.[a-z]+$`)

// collectPages reads tool outputs named <prefix>-<n>.<ext>, keyed by n.
func collectPages(dir, ext string) (map[int][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := map[int][]byte{}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ext {
			continue
		}
		m := pageSuffix.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out[n] = b
	}
	return out, nil
}
