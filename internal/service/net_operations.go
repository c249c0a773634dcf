package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/netcontrolapp/netcontrol/internal/metrics"
	"github.com/netcontrolapp/netcontrol/internal/model"
	"github.com/netcontrolapp/netcontrol/internal/queue"
	"github.com/netcontrolapp/netcontrol/internal/recurrence"
	"github.com/netcontrolapp/netcontrol/internal/report"
	"github.com/netcontrolapp/netcontrol/internal/repository"
)

const (
	maxNetName      = 100
	maxFrequency    = 50
	maxNetNotes     = 1000
	maxCheckInName  = 100
	maxLocation     = 100
	maxLicenseClass = 10
	maxCheckInNotes = 500
)

// Actor is the authenticated account performing an operation.
type Actor struct {
	ID       uint64
	Callsign string
	Role     string
}

// ActorOf builds an Actor from a resolved account.
func ActorOf(a model.Account) Actor {
	return Actor{ID: a.ID, Callsign: a.Callsign, Role: a.Role}
}

func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }

// NetOperationService implements the net lifecycle and check-in handling.
// Every mutation requires the actor to own the net or be an admin; reads
// are open to any authenticated account.
type NetOperationService struct {
	ops    NetOperationStore
	events EventPublisher
	log    *zap.Logger
	now    func() time.Time
}

func NewNetOperationService(ops NetOperationStore, events EventPublisher, log *zap.Logger) *NetOperationService {
	if ops == nil {
		panic("nil store passed to NewNetOperationService")
	}
	if events == nil {
		events = NopPublisher{}
	}
	return &NetOperationService{ops: ops, events: events, log: log, now: now}
}

// NetInput holds the free-text fields of a net.
type NetInput struct {
	NetName   string
	Frequency string
	Notes     string
}

func checkLen(fields []FieldError, name, value string, min, max int) []FieldError {
	n := utf8.RuneCountInString(value)
	switch {
	case n < min && min == 1:
		return append(fields, FieldError{Field: name, Message: "is required"})
	case n < min:
		return append(fields, FieldError{Field: name, Message: fmt.Sprintf("must be at least %d characters", min)})
	case n > max:
		return append(fields, FieldError{Field: name, Message: fmt.Sprintf("must be at most %d characters", max)})
	}
	return fields
}

func fieldsErr(fields []FieldError) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// clean sanitizes the input. An empty name falls back to DefaultNetName.
func (in NetInput) clean() (NetInput, error) {
	out := NetInput{NetName: Sanitize(in.NetName), Frequency: Sanitize(in.Frequency), Notes: Sanitize(in.Notes)}
	if out.NetName == "" {
		out.NetName = model.DefaultNetName
	}
	var fields []FieldError
	fields = checkLen(fields, "netName", out.NetName, 1, maxNetName)
	fields = checkLen(fields, "frequency", out.Frequency, 0, maxFrequency)
	fields = checkLen(fields, "notes", out.Notes, 0, maxNetNotes)
	return out, fieldsErr(fields)
}

// Create starts an ad-hoc net owned by the actor. It begins active with the
// current time as its start.
func (s *NetOperationService) Create(ctx context.Context, actor Actor, in NetInput) (*model.NetOperation, error) {
	in, err := in.clean()
	if err != nil {
		return nil, err
	}
	at := s.now()
	op := &model.NetOperation{
		OperatorID:       actor.ID,
		OperatorCallsign: actor.Callsign,
		NetName:          in.NetName,
		Frequency:        in.Frequency,
		Notes:            in.Notes,
		StartTime:        at,
		Status:           model.StatusActive,
		Recurrence:       string(recurrence.None),
		CheckIns:         []model.CheckIn{},
		CreatedAt:        at,
		UpdatedAt:        at,
	}
	if err := s.ops.Create(ctx, op); err != nil {
		return nil, err
	}
	s.log.Info("net created", zap.Uint64("net_id", op.ID), zap.String("operator", actor.Callsign))
	return op, nil
}

// ScheduleInput describes a scheduled net and how it repeats.
type ScheduleInput struct {
	NetInput
	StartTime  time.Time
	Recurrence string
}

// ScheduleResult lists the records actually created. Partial is set when
// the series stopped early; the records already written are kept.
type ScheduleResult struct {
	Operations []model.NetOperation
	Expected   int
	Partial    bool
}

// Schedule creates a scheduled net plus one independent record per
// recurrence occurrence. Records are written one at a time and a failure
// mid-series is not rolled back.
func (s *NetOperationService) Schedule(ctx context.Context, actor Actor, in ScheduleInput) (ScheduleResult, error) {
	var res ScheduleResult
	base, err := in.NetInput.clean()
	if err != nil {
		return res, err
	}
	if in.StartTime.IsZero() {
		return res, Invalid("startTime", "is required")
	}
	rule, err := recurrence.Parse(in.Recurrence)
	if err != nil {
		return res, Invalid("recurrence", "must be one of none, daily, weekly, bi-weekly, monthly")
	}
	start := in.StartTime.UTC().Truncate(time.Millisecond)
	more, err := recurrence.Expand(start, rule)
	if err != nil {
		return res, err
	}
	starts := append([]time.Time{start}, more...)
	res.Expected = len(starts)

	at := s.now()
	for i, st := range starts {
		op := model.NetOperation{
			OperatorID:       actor.ID,
			OperatorCallsign: actor.Callsign,
			NetName:          base.NetName,
			Frequency:        base.Frequency,
			Notes:            base.Notes,
			StartTime:        st,
			Status:           model.StatusScheduled,
			IsScheduled:      true,
			Recurrence:       string(rule),
			CheckIns:         []model.CheckIn{},
			CreatedAt:        at,
			UpdatedAt:        at,
		}
		if err := s.ops.Create(ctx, &op); err != nil {
			if i == 0 {
				return res, err
			}
			s.log.Error("scheduled series stopped early",
				zap.Int("created", i), zap.Int("expected", len(starts)), zap.Error(err))
			res.Partial = true
			break
		}
		res.Operations = append(res.Operations, op)
	}

	first := res.Operations[0]
	ev := eventFor(queue.EventNetScheduled, &first, at)
	ev.Occurrences = len(res.Operations)
	s.publish(ctx, ev)
	return res, nil
}

// ListQuery filters List. Dates use the same day-window rules as reports.
type ListQuery struct {
	StartDate string
	EndDate   string
	Status    string
}

// List returns operations newest first.
func (s *NetOperationService) List(ctx context.Context, q ListQuery) ([]model.NetOperation, error) {
	f, err := report.ParseFilter("", q.StartDate, q.EndDate)
	if err != nil {
		return nil, filterError(err)
	}
	switch q.Status {
	case "", model.StatusScheduled, model.StatusActive, model.StatusCompleted:
	default:
		return nil, Invalid("status", "must be scheduled, active or completed")
	}
	from, to := f.Window()
	return s.ops.List(ctx, repository.NetOperationFilter{From: from, To: to, Status: q.Status})
}

func filterError(err error) error {
	var fe *report.FilterError
	if errors.As(err, &fe) {
		return Invalid(fe.Field, fe.Reason)
	}
	return err
}

// Get returns one operation.
func (s *NetOperationService) Get(ctx context.Context, id uint64) (*model.NetOperation, error) {
	op, err := s.ops.GetByID(ctx, id)
	if err != nil {
		return nil, netErr(err)
	}
	return op, nil
}

func netErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return newError(ErrNotFound, "net operation not found")
	case errors.Is(err, repository.ErrStateChanged):
		return newError(ErrPrecondition, "net operation status changed, reload and retry")
	}
	return err
}

func authorize(actor Actor, op *model.NetOperation) error {
	if op.OwnedBy(actor.ID) || actor.IsAdmin() {
		return nil
	}
	return newError(ErrForbidden, "only the net operator or an admin may change this net")
}

// loadOwned fetches an operation the actor may mutate.
func (s *NetOperationService) loadOwned(ctx context.Context, actor Actor, id uint64) (*model.NetOperation, error) {
	op, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, op); err != nil {
		return nil, err
	}
	return op, nil
}

// UpdateInput holds the editable fields. Nil fields are left unchanged.
type UpdateInput struct {
	NetName   *string
	Frequency *string
	Notes     *string
}

// Update edits name, frequency and notes at any status.
func (s *NetOperationService) Update(ctx context.Context, actor Actor, id uint64, in UpdateInput) (*model.NetOperation, error) {
	op, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	var fields []FieldError
	if in.NetName != nil {
		op.NetName = Sanitize(*in.NetName)
		fields = checkLen(fields, "netName", op.NetName, 1, maxNetName)
	}
	if in.Frequency != nil {
		op.Frequency = Sanitize(*in.Frequency)
		fields = checkLen(fields, "frequency", op.Frequency, 0, maxFrequency)
	}
	if in.Notes != nil {
		op.Notes = Sanitize(*in.Notes)
		fields = checkLen(fields, "notes", op.Notes, 0, maxNetNotes)
	}
	if err := fieldsErr(fields); err != nil {
		return nil, err
	}
	op.UpdatedAt = s.now()
	if err := s.ops.UpdateFields(ctx, op); err != nil {
		return nil, netErr(err)
	}
	return op, nil
}

// UpdateNotes replaces only the notes.
func (s *NetOperationService) UpdateNotes(ctx context.Context, actor Actor, id uint64, notes string) (*model.NetOperation, error) {
	return s.Update(ctx, actor, id, UpdateInput{Notes: &notes})
}

// Start moves a scheduled net to active and resets its start time to now.
func (s *NetOperationService) Start(ctx context.Context, actor Actor, id uint64) (*model.NetOperation, error) {
	op, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if op.Status != model.StatusScheduled {
		return nil, newError(ErrPrecondition, "only a scheduled net can be started")
	}
	at := s.now()
	if err := s.ops.Start(ctx, id, at); err != nil {
		return nil, netErr(err)
	}
	op.Status, op.StartTime, op.IsScheduled, op.UpdatedAt = model.StatusActive, at, false, at
	s.publish(ctx, eventFor(queue.EventNetStarted, op, at))
	return op, nil
}

// Complete ends an active net.
func (s *NetOperationService) Complete(ctx context.Context, actor Actor, id uint64) (*model.NetOperation, error) {
	op, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if op.Status != model.StatusActive {
		return nil, newError(ErrPrecondition, "only an active net can be completed")
	}
	at := s.now()
	if err := s.ops.Complete(ctx, id, at); err != nil {
		return nil, netErr(err)
	}
	op.Status, op.EndTime, op.UpdatedAt = model.StatusCompleted, &at, at
	s.publish(ctx, eventFor(queue.EventNetCompleted, op, at))
	return op, nil
}

// Delete removes a net and its check-ins.
func (s *NetOperationService) Delete(ctx context.Context, actor Actor, id uint64) error {
	if _, err := s.loadOwned(ctx, actor, id); err != nil {
		return err
	}
	if err := s.ops.Delete(ctx, id); err != nil {
		return netErr(err)
	}
	s.log.Info("net deleted", zap.Uint64("net_id", id), zap.Uint64("by", actor.ID))
	return nil
}

// CheckInInput is a station checking in.
type CheckInInput struct {
	Callsign           string
	Name               string
	Location           string
	LicenseClass       string
	StayingForComments bool
	Notes              string
}

func (in CheckInInput) build(at time.Time) (model.CheckIn, error) {
	ci := model.CheckIn{
		ID:                 uuid.NewString(),
		Callsign:           normalizeCallsign(in.Callsign),
		Name:               Sanitize(in.Name),
		Location:           Sanitize(in.Location),
		LicenseClass:       Sanitize(in.LicenseClass),
		StayingForComments: in.StayingForComments,
		Notes:              Sanitize(in.Notes),
		Timestamp:          at,
	}
	var fields []FieldError
	if !callsignPattern.MatchString(ci.Callsign) {
		fields = append(fields, FieldError{Field: "callsign", Message: "must be 3-10 letters, digits or '/'"})
	}
	fields = checkLen(fields, "name", ci.Name, 1, maxCheckInName)
	fields = checkLen(fields, "location", ci.Location, 0, maxLocation)
	fields = checkLen(fields, "license_class", ci.LicenseClass, 0, maxLicenseClass)
	fields = checkLen(fields, "notes", ci.Notes, 0, maxCheckInNotes)
	return ci, fieldsErr(fields)
}

// AddCheckIn appends a check-in. The append is a single targeted update so
// concurrent check-ins to the same net are all kept.
func (s *NetOperationService) AddCheckIn(ctx context.Context, actor Actor, id uint64, in CheckInInput) (model.CheckIn, error) {
	at := s.now()
	ci, err := in.build(at)
	if err != nil {
		return ci, err
	}
	if _, err := s.loadOwned(ctx, actor, id); err != nil {
		return ci, err
	}
	if err := s.ops.AppendCheckIn(ctx, id, ci, at); err != nil {
		return ci, netErr(err)
	}
	return ci, nil
}

func checkInNotFound() error { return newError(ErrNotFound, "check-in not found") }

// mutateCheckIn runs fn on one check-in under the store's row lock.
func (s *NetOperationService) mutateCheckIn(ctx context.Context, actor Actor, id uint64, checkInID string, fn func(op *model.NetOperation, i int) error) (*model.NetOperation, error) {
	op, err := s.ops.MutateCheckIns(ctx, id, s.now(), func(op *model.NetOperation) error {
		if err := authorize(actor, op); err != nil {
			return err
		}
		i := op.CheckInIndex(checkInID)
		if i < 0 {
			return checkInNotFound()
		}
		return fn(op, i)
	})
	if err != nil {
		return nil, netErr(err)
	}
	return op, nil
}

// RemoveCheckIn deletes one check-in and keeps the order of the rest.
func (s *NetOperationService) RemoveCheckIn(ctx context.Context, actor Actor, id uint64, checkInID string) (*model.NetOperation, error) {
	return s.mutateCheckIn(ctx, actor, id, checkInID, func(op *model.NetOperation, i int) error {
		op.CheckIns = append(op.CheckIns[:i], op.CheckIns[i+1:]...)
		return nil
	})
}

// UpdateCheckInNotes replaces a check-in's notes, also after completion.
func (s *NetOperationService) UpdateCheckInNotes(ctx context.Context, actor Actor, id uint64, checkInID, notes string) (model.CheckIn, error) {
	notes = Sanitize(notes)
	if err := fieldsErr(checkLen(nil, "notes", notes, 0, maxCheckInNotes)); err != nil {
		return model.CheckIn{}, err
	}
	var out model.CheckIn
	_, err := s.mutateCheckIn(ctx, actor, id, checkInID, func(op *model.NetOperation, i int) error {
		op.CheckIns[i].Notes = notes
		out = op.CheckIns[i]
		return nil
	})
	return out, err
}

// SetCheckInCommented marks whether a station's comment turn is over. Only
// stations staying for comments can be marked commented.
func (s *NetOperationService) SetCheckInCommented(ctx context.Context, actor Actor, id uint64, checkInID string, commented bool) (model.CheckIn, error) {
	var out model.CheckIn
	_, err := s.mutateCheckIn(ctx, actor, id, checkInID, func(op *model.NetOperation, i int) error {
		if commented && !op.CheckIns[i].StayingForComments {
			return Invalid("commented", "station is not staying for comments")
		}
		op.CheckIns[i].Commented = commented
		out = op.CheckIns[i]
		return nil
	})
	return out, err
}

func eventFor(typ string, op *model.NetOperation, at time.Time) queue.NetEvent {
	return queue.NetEvent{
		Type:             typ,
		NetOperationID:   op.ID,
		OperatorID:       op.OperatorID,
		OperatorCallsign: op.OperatorCallsign,
		NetName:          op.NetName,
		Frequency:        op.Frequency,
		StartTime:        op.StartTime,
		EndTime:          op.EndTime,
		CheckInCount:     len(op.CheckIns),
		OccurredAt:       at,
	}
}

// publish delivers ev without letting a broker failure affect the request.
func (s *NetOperationService) publish(ctx context.Context, ev queue.NetEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := s.events.Publish(ctx, ev)
	metrics.RecordPublish(ev.Type, err)
	if err != nil {
		s.log.Warn("publish net event failed", zap.String("type", ev.Type), zap.Uint64("net_id", ev.NetOperationID), zap.Error(err))
	}
}
