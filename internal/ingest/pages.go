package ingest

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/joseph-ayodele/docintake/constants"
)

// PageCount reads the page tree of a PDF. Raster images count as one page.
func PageCount(data []byte, mime string) (int, error) {
	if constants.IsImage(mime) {
		return 1, nil
	}
	if constants.NormalizeMIME(mime) != constants.MIMEPDF {
		return 0, fmt.Errorf("page count: unsupported type %q", mime)
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("page count: %w", err)
	}
	return n, nil
}
