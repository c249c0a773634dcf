package report

import (
	"time"

	"github.com/netcontrolapp/netcontrol/internal/model"
)

// Summary holds the aggregate figures shown at the top of a report.
type Summary struct {
	Total           int     `json:"total"`
	Active          int     `json:"active"`
	Completed       int     `json:"completed"`
	Scheduled       int     `json:"scheduled"`
	CheckIns        int     `json:"checkIns"`
	AverageCheckIns float64 `json:"averageCheckIns"`
}

// Summarize counts operations by status and check-ins across all of them.
// The average is zero for an empty set.
func Summarize(ops []model.NetOperation) Summary {
	var s Summary
	s.Total = len(ops)
	for _, op := range ops {
		switch op.Status {
		case model.StatusActive:
			s.Active++
		case model.StatusCompleted:
			s.Completed++
		case model.StatusScheduled:
			s.Scheduled++
		}
		s.CheckIns += len(op.CheckIns)
	}
	if s.Total > 0 {
		s.AverageCheckIns = float64(s.CheckIns) / float64(s.Total)
	}
	return s
}

// Image is an optional logo placed on the first page.
type Image struct {
	Data []byte
	Type string // file extension without dot: jpg, jpeg, png, gif, svg, webp
}

// Document is everything a renderer needs.
type Document struct {
	Title         string
	GeneratedAt   time.Time
	OperatorLabel string
	Filter        Filter
	ShowFilters   bool
	ShowSummary   bool
	Operations    []model.NetOperation
	Logo          *Image
}

// NewAggregate builds the multi-net report document.
func NewAggregate(f Filter, operatorLabel string, ops []model.NetOperation, logo *Image, at time.Time) Document {
	return Document{
		Title:         "Net Operations Report",
		GeneratedAt:   at,
		OperatorLabel: operatorLabel,
		Filter:        f,
		ShowFilters:   true,
		ShowSummary:   true,
		Operations:    ops,
		Logo:          logo,
	}
}

// NewSingle builds the export document for one net.
func NewSingle(op model.NetOperation, logo *Image, at time.Time) Document {
	return Document{
		Title:       "Net Operation Report",
		GeneratedAt: at,
		Operations:  []model.NetOperation{op},
		Logo:        logo,
	}
}
