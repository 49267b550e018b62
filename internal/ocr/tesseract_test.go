package ocr

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/docintake/constants"
)

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t100\t100\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t10\t10\t50\t20\t90.5\tGas\n" +
	"5\t1\t1\t1\t1\t2\t70\t10\t50\t20\t79.5\tSafety\n" +
	"5\t1\t1\t1\t1\t3\t130\t10\t50\t20\t-1\t\n"

func TestMeanTSVConfidence(t *testing.T) {
	c, ok := meanTSVConfidence(sampleTSV)
	require.True(t, ok)
	assert.InDelta(t, 0.85, c, 1e-9)

	_, ok = meanTSVConfidence("level\tconf\n")
	assert.False(t, ok)
}

type stubRunner struct {
	calls []string
	pages int
}

func (r *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	r.calls = append(r.calls, name+" "+strings.Join(args, " "))
	switch name {
	case "pdftoppm":
		prefix := args[len(args)-1]
		for i := 1; i <= r.pages; i++ {
			if err := os.WriteFile(prefix+"-"+string(rune('0'+i))+".png", []byte("png"), 0o600); err != nil {
				return nil, nil, err
			}
		}
		return nil, nil, nil
	case "tesseract":
		if args[len(args)-1] == "tsv" {
			return []byte(sampleTSV), nil, nil
		}
		return []byte("Gas Safety Record\n"), nil, nil
	}
	return nil, []byte("unexpected command"), os.ErrNotExist
}

func TestTesseractImage(t *testing.T) {
	r := &stubRunner{}
	s := NewTesseract(Config{EnableTSVConfidence: true}, r, nil)

	rec, err := s.Extract(context.Background(), []byte("png"), constants.MIMEPNG)
	require.NoError(t, err)
	assert.Equal(t, "Gas Safety Record\n", rec.Text)
	assert.Equal(t, 1, rec.Pages)
	assert.InDelta(t, 0.85, rec.Confidence, 1e-9)
	require.Len(t, r.calls, 2)
	assert.Contains(t, r.calls[0], "-l eng")
}

func TestTesseractRasterizesPDF(t *testing.T) {
	r := &stubRunner{pages: 3}
	s := NewTesseract(Config{MaxPages: 2}, r, nil)

	rec, err := s.Extract(context.Background(), []byte("%PDF"), constants.MIMEPDF)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.Pages)
	assert.Equal(t, 2, strings.Count(rec.Text, "Gas Safety Record"))
	assert.Equal(t, NoConfidence, rec.Confidence)
	assert.True(t, strings.HasPrefix(r.calls[0], "pdftoppm -r 300 -png -l 2"))
}
