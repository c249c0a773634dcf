package handler

import (
	"bytes"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/netcontrolapp/netcontrol/internal/metrics"
	"github.com/netcontrolapp/netcontrol/internal/middleware"
	"github.com/netcontrolapp/netcontrol/internal/report"
	"github.com/netcontrolapp/netcontrol/internal/service"
)

const (
	mimePDF  = "application/pdf"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ReportHandler renders the aggregate report and single-net exports.
type ReportHandler struct {
	Reports *service.ReportService
	Log     *zap.Logger
}

func NewReportHandler(reports *service.ReportService, log *zap.Logger) *ReportHandler {
	if reports == nil {
		panic("nil service passed to NewReportHandler")
	}
	return &ReportHandler{Reports: reports, Log: log}
}

type reportReq struct {
	OperatorID flexID `json:"operatorId"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
	Format     string `json:"format"`
}

// attachment writes body as a download. The document is rendered into a
// buffer first so a rendering failure can still answer with JSON.
func attachment(c echo.Context, contentType, filename string, body *bytes.Buffer) error {
	h := c.Response().Header()
	h.Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	h.Set(echo.HeaderContentLength, strconv.Itoa(body.Len()))
	return c.Blob(http.StatusOK, contentType, body.Bytes())
}

// Generate renders the aggregate report as PDF or XLSX.
func (h *ReportHandler) Generate(c echo.Context) error {
	var req reportReq
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	format, err := service.ParseFormat(req.Format)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	doc, err := h.Reports.Generate(ctx, middleware.UserID(c), service.ReportRequest{
		OperatorID: string(req.OperatorID),
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Format:     format,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}

	var buf bytes.Buffer
	contentType := mimePDF
	if format == service.FormatXLSX {
		contentType = mimeXLSX
		err = report.RenderXLSX(&buf, doc)
	} else {
		err = report.RenderPDF(&buf, doc)
	}
	if err != nil {
		h.Log.Error("render report failed", zap.String("format", format), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to generate report"})
	}
	metrics.ReportsGenerated.WithLabelValues("aggregate", format).Inc()
	return attachment(c, contentType, report.GeneratedFilename("net-operations-report", format, doc.GeneratedAt), &buf)
}

// ExportNet renders one net as PDF.
func (h *ReportHandler) ExportNet(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	doc, err := h.Reports.NetDocument(ctx, middleware.UserID(c), id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var buf bytes.Buffer
	if err := report.RenderPDF(&buf, doc); err != nil {
		h.Log.Error("render net export failed", zap.Uint64("net_id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to generate report"})
	}
	metrics.ReportsGenerated.WithLabelValues("single", service.FormatPDF).Inc()
	return attachment(c, mimePDF, report.GeneratedFilename("net-operation-"+strconv.FormatUint(id, 10), service.FormatPDF, doc.GeneratedAt), &buf)
}
