package report

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/netcontrolapp/netcontrol/internal/model"
)

// compressPDF is switched off in tests so page text can be inspected.
var compressPDF = true

const timeLayout = "2006-01-02 15:04 UTC"

// embeddable maps logo extensions to the fpdf image type. Anything else is
// left out of the document.
var embeddable = map[string]string{"jpg": "JPG", "jpeg": "JPG", "png": "PNG", "gif": "GIF"}

type pdfWriter struct {
	pdf *fpdf.Fpdf
	tr  func(string) string
}

// RenderPDF writes doc as a paginated PDF with a "Page i of n" footer on
// every page.
func RenderPDF(w io.Writer, doc Document) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(compressPDF)
	pdf.SetTitle(doc.Title, true)
	pdf.SetCreator("netcontrol", true)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AliasNbPages("{nb}")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(110, 110, 110)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	})

	pw := &pdfWriter{pdf: pdf, tr: pdf.UnicodeTranslatorFromDescriptor("")}
	pdf.AddPage()
	pw.logo(doc.Logo)
	pw.header(doc)
	if doc.ShowFilters {
		pw.filters(doc)
	}
	if doc.ShowSummary {
		pw.summary(Summarize(doc.Operations))
	}
	for i, op := range doc.Operations {
		pw.operation(i+1, op, len(doc.Operations) > 1)
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return pdf.Output(w)
}

// logo places the image in the top-right corner of the first page. Formats
// the renderer cannot decode are skipped without failing the report.
func (p *pdfWriter) logo(img *Image) {
	if img == nil || len(img.Data) == 0 {
		return
	}
	kind, ok := embeddable[strings.ToLower(img.Type)]
	if !ok {
		return
	}
	opts := fpdf.ImageOptions{ImageType: kind, ReadDpi: true}
	info := p.pdf.RegisterImageOptionsReader("logo", opts, bytes.NewReader(img.Data))
	if !p.pdf.Ok() || info == nil {
		p.pdf.ClearError()
		return
	}
	pageW, _ := p.pdf.GetPageSize()
	_, top, right, _ := p.pdf.GetMargins()
	p.pdf.ImageOptions("logo", pageW-right-30, top, 30, 0, false, opts, 0, "")
	if !p.pdf.Ok() {
		p.pdf.ClearError()
	}
}

func (p *pdfWriter) header(doc Document) {
	p.pdf.SetFont("Helvetica", "B", 18)
	p.pdf.CellFormat(0, 10, p.tr(doc.Title), "", 1, "L", false, 0, "")
	p.pdf.SetFont("Helvetica", "", 9)
	p.pdf.CellFormat(0, 6, "Generated: "+doc.GeneratedAt.UTC().Format(timeLayout), "", 1, "L", false, 0, "")
	p.pdf.Ln(4)
}

func (p *pdfWriter) section(title string) {
	p.pdf.SetFont("Helvetica", "B", 13)
	p.pdf.SetFillColor(230, 236, 245)
	p.pdf.CellFormat(0, 8, p.tr(title), "", 1, "L", true, 0, "")
	p.pdf.Ln(1)
}

func (p *pdfWriter) pair(label, value string) {
	p.pdf.SetFont("Helvetica", "B", 10)
	p.pdf.CellFormat(40, 6, p.tr(label), "", 0, "L", false, 0, "")
	p.pdf.SetFont("Helvetica", "", 10)
	p.pdf.MultiCell(0, 6, p.tr(value), "", "L", false)
}

func (p *pdfWriter) filters(doc Document) {
	p.section("Filters")
	label := doc.OperatorLabel
	if label == "" {
		label = "All Operators"
	}
	p.pair("Operator:", label)
	p.pair("Date Range:", doc.Filter.DateRange())
	p.pdf.Ln(3)
}

func (p *pdfWriter) summary(s Summary) {
	p.section("Summary")
	p.pair("Total Operations:", fmt.Sprint(s.Total))
	p.pair("Active:", fmt.Sprint(s.Active))
	p.pair("Completed:", fmt.Sprint(s.Completed))
	p.pair("Scheduled:", fmt.Sprint(s.Scheduled))
	p.pair("Total Check-ins:", fmt.Sprint(s.CheckIns))
	p.pair("Average Check-ins:", fmt.Sprintf("%.1f", s.AverageCheckIns))
	p.pdf.Ln(3)
}

func formatEnd(op model.NetOperation) string {
	if op.EndTime != nil {
		return op.EndTime.UTC().Format(timeLayout)
	}
	if op.Status == model.StatusActive {
		return "In progress"
	}
	return "-"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func (p *pdfWriter) operation(n int, op model.NetOperation, numbered bool) {
	title := op.NetName
	if numbered {
		title = fmt.Sprintf("%d. %s", n, op.NetName)
	}
	p.section(title)
	p.pair("Operator:", op.OperatorCallsign)
	p.pair("Status:", op.Status)
	p.pair("Start:", op.StartTime.UTC().Format(timeLayout))
	p.pair("End:", formatEnd(op))
	p.pair("Frequency:", orDash(op.Frequency))
	p.pair("Check-ins:", fmt.Sprint(len(op.CheckIns)))
	if strings.TrimSpace(op.Notes) != "" {
		p.pair("Notes:", op.Notes)
	}
	p.pdf.Ln(2)
	if len(op.CheckIns) > 0 {
		p.checkIns(op.CheckIns)
	}
	p.pdf.Ln(4)
}

var checkInCols = []struct {
	title string
	width float64
}{
	{"#", 8}, {"Callsign", 24}, {"Name", 36}, {"Class", 16}, {"Location", 40}, {"Time", 34}, {"Comments", 32},
}

func (p *pdfWriter) checkInHeader() {
	p.pdf.SetFont("Helvetica", "B", 9)
	p.pdf.SetFillColor(210, 218, 230)
	for _, c := range checkInCols {
		p.pdf.CellFormat(c.width, 6, c.title, "1", 0, "L", true, 0, "")
	}
	p.pdf.Ln(-1)
}

func commentStatus(ci model.CheckIn) string {
	switch {
	case !ci.StayingForComments:
		return "No"
	case ci.Commented:
		return "Yes (done)"
	default:
		return "Yes (waiting)"
	}
}

func (p *pdfWriter) checkIns(list []model.CheckIn) {
	_, pageH := p.pdf.GetPageSize()
	p.checkInHeader()
	for i, ci := range list {
		if p.pdf.GetY() > pageH-35 {
			p.pdf.AddPage()
			p.checkInHeader()
		}
		p.pdf.SetFont("Helvetica", "", 9)
		cells := []string{
			fmt.Sprint(i + 1), ci.Callsign, ci.Name, orDash(ci.LicenseClass), orDash(ci.Location),
			ci.Timestamp.UTC().Format(timeLayout), commentStatus(ci),
		}
		for j, c := range checkInCols {
			p.pdf.CellFormat(c.width, 6, p.fit(cells[j], c.width), "1", 0, "L", false, 0, "")
		}
		p.pdf.Ln(-1)
		if strings.TrimSpace(ci.Notes) != "" {
			p.pdf.SetFont("Helvetica", "I", 8)
			p.pdf.MultiCell(0, 5, p.tr("Notes: "+ci.Notes), "LRB", "L", false)
		}
	}
}

// fit truncates s so it fits in a cell of width w.
func (p *pdfWriter) fit(s string, w float64) string {
	s = p.tr(s)
	for len(s) > 0 && p.pdf.GetStringWidth(s) > w-2 {
		s = s[:len(s)-1]
	}
	return s
}

// GeneratedFilename names a report download.
func GeneratedFilename(prefix, ext string, at time.Time) string {
	return fmt.Sprintf("%s-%s.%s", prefix, at.UTC().Format("20060102-150405"), ext)
}
