package pdftools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"document-intelligence/internal/domain/ports/adapter"
)

var _ adapter.OfficeConverter = (*Office)(nil)

// Office converts office documents with a headless LibreOffice.
type Office struct {
	runner Runner
	binary string
	tmpDir string
}

func NewOffice(runner Runner) *Office {
	return &Office{runner: runner, binary: "soffice"}
}

func (o *Office) ToPDF(ctx context.Context, data []byte, fileName string) ([]byte, error) {
	files, cleanup, err := o.convert(ctx, data, fileName, "pdf")
	defer cleanup()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("soffice: no pdf produced for %s", fileName)
	}
	return os.ReadFile(files[0])
}

// SlideImages returns whatever PNGs the converter produced, in name order.
// LibreOffice often emits a single image for a whole deck; callers decide
// whether the result is usable.
func (o *Office) SlideImages(ctx context.Context, data []byte, fileName string) ([][]byte, error) {
	files, cleanup, err := o.convert(ctx, data, fileName, "png")
	defer cleanup()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(files))
	for _, f := range files {
		b, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (o *Office) convert(ctx context.Context, data []byte, fileName, format string) ([]string, func(), error) {
	noop := func() {}
	dir, err := os.MkdirTemp(o.tmpDir, "office-*")
	if err != nil {
		return nil, noop, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	name := filepath.Base(fileName)
	if name == "" || name == "." || name == "/" {
		name = "input"
	}
	in := filepath.Join(dir, name)
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, cleanup, err
	}
	outDir := filepath.Join(dir, "out")
	if err := os.Mkdir(outDir, 0o700); err != nil {
		return nil, cleanup, err
	}
	_, stderr, err := o.runner.Run(ctx, o.binary, "--headless", "--convert-to", format, "--outdir", outDir, in)
	if err != nil {
		return nil, cleanup, fmt.Errorf("soffice %s: %w: %s", format, err, truncate(string(stderr), 512))
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, cleanup, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), "."+format) {
			files = append(files, filepath.Join(outDir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, cleanup, nil
}
