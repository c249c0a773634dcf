package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/netcontrolapp/netcontrol/internal/model"
	"github.com/netcontrolapp/netcontrol/internal/service"
)

// NetOperationHandler serves the net lifecycle and check-in endpoints.
type NetOperationHandler struct {
	Ops *service.NetOperationService
	Log *zap.Logger
}

func NewNetOperationHandler(ops *service.NetOperationService, log *zap.Logger) *NetOperationHandler {
	if ops == nil {
		panic("nil service passed to NewNetOperationHandler")
	}
	return &NetOperationHandler{Ops: ops, Log: log}
}

type netReq struct {
	NetName   string `json:"netName" validate:"max=100"`
	Frequency string `json:"frequency" validate:"max=50"`
	Notes     string `json:"notes" validate:"max=1000"`
}

type scheduleReq struct {
	netReq
	StartTime  string `json:"startTime" validate:"required"`
	Recurrence string `json:"recurrence"`
}

// startTimeLayouts are tried in order. The zoneless forms are what a
// datetime-local input submits and are read as UTC.
var startTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

func parseStartTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range startTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, service.Invalid("startTime", "must be an RFC 3339 date-time or YYYY-MM-DDTHH:MM")
}

type updateNetReq struct {
	NetName   *string `json:"netName"`
	Frequency *string `json:"frequency"`
	Notes     *string `json:"notes"`
}

type notesReq struct {
	Notes string `json:"notes"`
}

type checkInReq struct {
	Callsign           string `json:"callsign" validate:"required,callsign"`
	Name               string `json:"name" validate:"required"`
	Location           string `json:"location"`
	LicenseClass       string `json:"license_class"`
	StayingForComments bool   `json:"stayingForComments"`
	Notes              string `json:"notes"`
}

type commentedReq struct {
	Commented *bool `json:"commented" validate:"required"`
}

type scheduleResp struct {
	Message    string               `json:"message"`
	Created    int                  `json:"created"`
	Expected   int                  `json:"expected"`
	Partial    bool                 `json:"partial"`
	Operations []model.NetOperation `json:"operations"`
}

// Create starts an ad-hoc net.
func (h *NetOperationHandler) Create(c echo.Context) error {
	who, err := actor(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req netReq
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	op, err := h.Ops.Create(ctx, who, service.NetInput{NetName: req.NetName, Frequency: req.Frequency, Notes: req.Notes})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, op)
}

// Schedule creates a scheduled net and its recurrences. A series that
// stopped early still answers 201 with partial set.
func (h *NetOperationHandler) Schedule(c echo.Context) error {
	who, err := actor(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req scheduleReq
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	start, err := parseStartTime(req.StartTime)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	res, err := h.Ops.Schedule(ctx, who, service.ScheduleInput{
		NetInput:   service.NetInput{NetName: req.NetName, Frequency: req.Frequency, Notes: req.Notes},
		StartTime:  start,
		Recurrence: req.Recurrence,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	msg := "Net operation scheduled successfully"
	if res.Partial {
		msg = "Net operation series was only partially created"
	}
	return c.JSON(http.StatusCreated, scheduleResp{
		Message:    msg,
		Created:    len(res.Operations),
		Expected:   res.Expected,
		Partial:    res.Partial,
		Operations: res.Operations,
	})
}

// List returns nets filtered by date range and status, newest first.
func (h *NetOperationHandler) List(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	ops, err := h.Ops.List(ctx, service.ListQuery{
		StartDate: c.QueryParam("startDate"),
		EndDate:   c.QueryParam("endDate"),
		Status:    c.QueryParam("status"),
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	if ops == nil {
		ops = []model.NetOperation{}
	}
	return c.JSON(http.StatusOK, ops)
}

// Get returns one net.
func (h *NetOperationHandler) Get(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	op, err := h.Ops.Get(ctx, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, op)
}

// Update edits the allow-listed fields. Unknown body fields are ignored.
func (h *NetOperationHandler) Update(c echo.Context) error {
	who, err := actor(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req updateNetReq
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	op, err := h.Ops.Update(ctx, who, id, service.UpdateInput{NetName: req.NetName, Frequency: req.Frequency, Notes: req.Notes})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, op)
}

// UpdateNotes replaces the net notes.
func (h *NetOperationHandler) UpdateNotes(c echo.Context) error {
	who, err := actor(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req notesReq
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	op, err := h.Ops.UpdateNotes(ctx, who, id, req.Notes)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, op)
}

// transition runs Start or Complete.
func (h *NetOperationHandler) transition(c echo.Context, fn func(ctx context.Context, who service.Actor, id uint64) (*model.NetOperation, error)) error {
	who, err := actor(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	op, err := fn(ctx, who, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, op)
}

// Start moves a scheduled net to active.
func (h *NetOperationHandler) Start(c echo.Context) error {
	return h.transition(c, h.Ops.Start)
}

// Complete ends an active net.
func (h *NetOperationHandler) Complete(c echo.Context) error {
	return h.transition(c, h.Ops.Complete)
}

// Delete removes a net.
func (h *NetOperationHandler) Delete(c echo.Context) error {
	who, err := actor(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.Ops.Delete(ctx, who, id); err != nil {
		return writeError(c, h.Log, err)
	}
	return message(c, http.StatusOK, "Net operation deleted successfully")
}

// AddCheckIn appends a check-in and returns the updated net.
func (h *NetOperationHandler) AddCheckIn(c echo.Context) error {
	who, err := actor(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	id, err := parseID(c, "id")
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req checkInReq
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if _, err := h.Ops.AddCheckIn(ctx, who, id, service.CheckInInput{
		Callsign:           req.Callsign,
		Name:               req.Name,
		Location:           req.Location,
		LicenseClass:       req.LicenseClass,
		StayingForComments: req.StayingForComments,
		Notes:              req.Notes,
	}); err != nil {
		return writeError(c, h.Log, err)
	}
	return h.respondNet(c, http.StatusCreated, id)
}

// respondNet answers with the current state of net id.
func (h *NetOperationHandler) respondNet(c echo.Context, status int, id uint64) error {
	ctx, cancel := requestContext(c)
	defer cancel()
	op, err := h.Ops.Get(ctx, id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(status, op)
}

func checkInParams(c echo.Context) (uint64, string, error) {
	id, err := parseID(c, "id")
	if err != nil {
		return 0, "", err
	}
	checkInID := c.Param("checkinId")
	if checkInID == "" {
		return 0, "", service.Invalid("checkinId", "is required")
	}
	return id, checkInID, nil
}

// RemoveCheckIn deletes one check-in.
func (h *NetOperationHandler) RemoveCheckIn(c echo.Context) error {
	who, err := actor(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	id, checkInID, err := checkInParams(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	op, err := h.Ops.RemoveCheckIn(ctx, who, id, checkInID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, op)
}

// UpdateCheckInNotes replaces a check-in's notes.
func (h *NetOperationHandler) UpdateCheckInNotes(c echo.Context) error {
	who, err := actor(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	id, checkInID, err := checkInParams(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req notesReq
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if _, err := h.Ops.UpdateCheckInNotes(ctx, who, id, checkInID, req.Notes); err != nil {
		return writeError(c, h.Log, err)
	}
	return h.respondNet(c, http.StatusOK, id)
}

// SetCheckInCommented sets the commented flag.
func (h *NetOperationHandler) SetCheckInCommented(c echo.Context) error {
	who, err := actor(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	id, checkInID, err := checkInParams(c)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	var req commentedReq
	if err := bind(c, &req); err != nil {
		return writeError(c, h.Log, err)
	}
	ctx, cancel := requestContext(c)
	defer cancel()

	if _, err := h.Ops.SetCheckInCommented(ctx, who, id, checkInID, *req.Commented); err != nil {
		return writeError(c, h.Log, err)
	}
	return h.respondNet(c, http.StatusOK, id)
}
