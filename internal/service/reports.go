package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/netcontrolapp/netcontrol/internal/report"
	"github.com/netcontrolapp/netcontrol/internal/repository"
)

// Report output formats.
const (
	FormatPDF  = "pdf"
	FormatXLSX = "xlsx"
)

// ReportService assembles report documents. Visibility is organization-wide:
// any operator's nets may be reported on.
type ReportService struct {
	ops      NetOperationStore
	accounts AccountStore
	settings *SettingsService
	log      *zap.Logger
	now      func() time.Time
}

func NewReportService(ops NetOperationStore, accounts AccountStore, settings *SettingsService, log *zap.Logger) *ReportService {
	if ops == nil || accounts == nil || settings == nil {
		panic("nil dependency passed to NewReportService")
	}
	return &ReportService{ops: ops, accounts: accounts, settings: settings, log: log, now: now}
}

// ReportRequest is the raw aggregate report request.
type ReportRequest struct {
	OperatorID string
	StartDate  string
	EndDate    string
	Format     string
}

// ParseFormat validates the requested output format. Empty means PDF.
func ParseFormat(f string) (string, error) {
	switch f {
	case "", FormatPDF:
		return FormatPDF, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", Invalid("format", "must be pdf or xlsx")
}

// Generate filters the nets and builds the aggregate document. The logo is
// taken from the requester's settings. Zero matches is ErrNotFound.
func (s *ReportService) Generate(ctx context.Context, requesterID uint64, req ReportRequest) (report.Document, error) {
	f, err := report.ParseFilter(req.OperatorID, req.StartDate, req.EndDate)
	if err != nil {
		return report.Document{}, filterError(err)
	}

	label := "All Operators"
	if f.OperatorID != nil {
		a, err := s.accounts.GetByID(ctx, *f.OperatorID)
		if errors.Is(err, repository.ErrNotFound) {
			return report.Document{}, newError(ErrNotFound, "operator not found")
		}
		if err != nil {
			return report.Document{}, err
		}
		label = a.Callsign
	}

	from, to := f.Window()
	ops, err := s.ops.List(ctx, repository.NetOperationFilter{OperatorID: f.OperatorID, From: from, To: to})
	if err != nil {
		return report.Document{}, err
	}
	if len(ops) == 0 {
		return report.Document{}, newError(ErrNotFound, "No operations found matching the criteria")
	}
	// chronological order reads better on paper
	slices.Reverse(ops)
	s.log.Info("report generated", zap.Uint64("by", requesterID), zap.String("operator", label), zap.Int("operations", len(ops)))
	return report.NewAggregate(f, label, ops, s.settings.LogoImage(ctx, requesterID), s.now()), nil
}

// NetDocument builds the single-net export.
func (s *ReportService) NetDocument(ctx context.Context, requesterID, id uint64) (report.Document, error) {
	op, err := s.ops.GetByID(ctx, id)
	if err != nil {
		return report.Document{}, netErr(err)
	}
	return report.NewSingle(*op, s.settings.LogoImage(ctx, requesterID), s.now()), nil
}
