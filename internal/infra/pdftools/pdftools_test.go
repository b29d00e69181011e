package pdftools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

// fakeRunner records calls and runs an optional side effect per command.
type fakeRunner struct {
	calls  []call
	stdout map[string][]byte
	effect map[string]func(args []string) error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	if fn, ok := f.effect[name]; ok {
		if err := fn(args); err != nil {
			return nil, []byte(err.Error()), err
		}
	}
	return f.stdout[name], nil, nil
}

func TestParsers(t *testing.T) {
	t.Run("page count from pdfinfo", func(t *testing.T) {
		n, err := parsePageCount([]byte("Producer: x\nPages:          12\nEncrypted: no\n"))
		require.NoError(t, err)
		assert.Equal(t, 12, n)

		_, err = parsePageCount([]byte("garbage"))
		assert.Error(t, err)
	})

	t.Run("form feed split pads missing pages", func(t *testing.T) {
		got := splitPages("one\ftwo\f", 3)
		assert.Equal(t, []string{"one", "two", ""}, got)
	})

	t.Run("image list marks pages with images", func(t *testing.T) {
		out := []byte(`page   num  type   width height color comp bpc  enc interp  object ID x-ppi y-ppi size ratio
--------------------------------------------------------------------------------------------
   3     0 image    1654  2339  gray    1   8  jpeg   no         9  0   200   200  412K 11%
   3     1 smask    1654  2339  gray    1   8  image  no        10  0   200   200  1K 0.0%
   5     2 image     100   100  rgb     3   8  image  no        12  0    72    72  2K 1%
`)
		assert.Equal(t, map[int]bool{3: true, 5: true}, parseImageList(out))
	})
}

func TestPoppler(t *testing.T) {
	ctx := context.Background()
	runner := &fakeRunner{
		stdout: map[string][]byte{
			"pdfinfo":   []byte("Pages: 3\n"),
			"pdftotext": []byte("Hello page one\f\f\f"),
		},
		effect: map[string]func(args []string) error{
			"pdftoppm": func(args []string) error {
				prefix := args[len(args)-1]
				for _, n := range []string{"1", "2", "3"} {
					if err := os.WriteFile(prefix+"-"+n+".jpg", []byte("jpg"+n), 0o600); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
	p := NewPoppler(runner, 900)
	p.tmpDir = t.TempDir()

	doc, err := p.Open(ctx, []byte("%PDF-1.7"))
	require.NoError(t, err)

	n, err := doc.PageCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	texts, err := doc.Text(ctx, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello page one", "", ""}, texts)

	imgs, err := doc.Render(ctx, 1, 3)
	require.NoError(t, err)
	assert.Len(t, imgs, 3)
	assert.Equal(t, []byte("jpg2"), imgs[2])

	var sawScale bool
	for _, c := range runner.calls {
		if c.name == "pdftoppm" {
			assert.Contains(t, c.args, "900")
			sawScale = true
		}
	}
	assert.True(t, sawScale)

	require.NoError(t, doc.Close())
}

func TestOffice(t *testing.T) {
	ctx := context.Background()

	t.Run("SlideImages returns every png in order", func(t *testing.T) {
		runner := &fakeRunner{effect: map[string]func([]string) error{
			"soffice": func(args []string) error {
				outDir := args[4]
				for _, n := range []string{"deck-2.png", "deck-1.png"} {
					if err := os.WriteFile(filepath.Join(outDir, n), []byte(n), 0o600); err != nil {
						return err
					}
				}
				return nil
			},
		}}
		o := NewOffice(runner)
		o.tmpDir = t.TempDir()

		imgs, err := o.SlideImages(ctx, []byte("pptx"), "deck.pptx")
		require.NoError(t, err)
		require.Len(t, imgs, 2)
		assert.Equal(t, "deck-1.png", string(imgs[0]))
	})

	t.Run("ToPDF surfaces converter failures", func(t *testing.T) {
		runner := &fakeRunner{effect: map[string]func([]string) error{
			"soffice": func([]string) error { return errors.New("boom") },
		}}
		o := NewOffice(runner)
		o.tmpDir = t.TempDir()
		_, err := o.ToPDF(ctx, []byte("docx"), "a.docx")
		assert.Error(t, err)
	})
}
