// Package render projects structured entries into a binary document. It has
// no knowledge of schedules or recipients.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/journalpost/internal/models"
	"github.com/jung-kurt/gofpdf"
)

// ErrRender marks a rendering failure; the attempt aborts with no partial output.
var ErrRender = errors.New("document rendering failed")

// PDFRenderer renders entries into a paginated PDF, one titled section per
// entry, newest first to match the list UI.
type PDFRenderer struct {
	title string
}

func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{title: "Journal Export"}
}

func (r *PDFRenderer) Render(entries []models.Entry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no entries to render", ErrRender)
	}

	ordered := make([]models.Entry, len(entries))
	copy(ordered, entries)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
	})

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(r.title, true)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, tr(r.title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(110, 110, 110)
	pdf.CellFormat(0, 6, fmt.Sprintf("%d entries", len(ordered)), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	for _, entry := range ordered {
		pdf.SetTextColor(0, 0, 0)
		pdf.SetFont("Helvetica", "B", 14)
		pdf.MultiCell(0, 7, tr(entry.Title), "", "L", false)

		pdf.SetFont("Helvetica", "I", 9)
		pdf.SetTextColor(110, 110, 110)
		pdf.CellFormat(0, 5, entry.CreatedAt.Format(time.RFC1123), "", 1, "L", false, 0, "")
		pdf.Ln(1)

		pdf.SetFont("Helvetica", "", 11)
		pdf.SetTextColor(0, 0, 0)
		pdf.MultiCell(0, 5.5, tr(entry.Body), "", "L", false)
		pdf.Ln(6)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRender, err)
	}
	return buf.Bytes(), nil
}
