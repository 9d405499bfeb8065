package proposal

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"backend-pilanitrails/internal/identity"
	"backend-pilanitrails/internal/shared/apperr"
	"backend-pilanitrails/internal/shared/docfields"
	"backend-pilanitrails/internal/shared/geo"
	"backend-pilanitrails/internal/store"

	"github.com/go-playground/validator/v10"
)

const voteAttempts = 5

type Service struct {
	gw                 *Gateway
	validate           *validator.Validate
	requireCoordinates bool
	events             Publisher
}

// NewService wires the lifecycle engine. events may be nil.
func NewService(s store.Store, requireCoordinates bool, events Publisher) *Service {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return ValidCategory(fl.Field().String())
	})
	return &Service{
		gw:                 NewGateway(s),
		validate:           v,
		requireCoordinates: requireCoordinates,
		events:             events,
	}
}

func (s *Service) Submit(ctx context.Context, sub Submission, submitter *identity.User) (string, error) {
	if submitter == nil || submitter.ID == "" {
		return "", &apperr.AuthorizationError{Action: "submit a proposal"}
	}

	sub.Name = strings.TrimSpace(sub.Name)
	sub.Description = strings.TrimSpace(sub.Description)
	sub.Category = strings.TrimSpace(sub.Category)
	if err := s.check(sub); err != nil {
		return "", err
	}

	by := actorOf(submitter)
	fields := map[string]any{
		"name":        sub.Name,
		"description": sub.Description,
		"category":    sub.Category,
		"tags":        strings.TrimSpace(sub.Tags),
		"imageUrl":    strings.TrimSpace(sub.ImageURL),
		"status":      string(StatusPending),
		"submittedBy": by.value(),
		"userId":      submitter.ID,
		"votes":       0,
		"voters":      map[string]any{},
		"createdAt":   store.ServerTimestamp,
		"updatedAt":   store.ServerTimestamp,
	}
	if sub.Coordinates != nil {
		fields["location"] = docfields.CoordinatesValue(*sub.Coordinates)
	}

	id, err := s.gw.Create(ctx, fields)
	if err != nil {
		return "", err
	}
	s.emit(EventSubmitted, id, by)
	return id, nil
}

// check collects every invalid field rather than stopping at the first.
func (s *Service) check(sub Submission) error {
	verr := &apperr.ValidationError{}

	if err := s.validate.Struct(sub); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			verr.Add(fe.Field(), reason(fe))
		}
	}

	switch {
	case sub.Coordinates == nil && s.requireCoordinates:
		verr.Add("coordinates", "required")
	case sub.Coordinates != nil:
		c := sub.Coordinates
		if !(c.Lat >= -90 && c.Lat <= 90) {
			verr.Add("coordinates.lat", "must be between -90 and 90")
		}
		if !(c.Lng >= -180 && c.Lng <= 180) {
			verr.Add("coordinates.lng", "must be between -180 and 180")
		}
	}
	return verr.OrNil()
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "category":
		return "must be one of " + strings.Join(Categories, ", ")
	default:
		return fmt.Sprintf("failed %s", fe.Tag())
	}
}

func (s *Service) Approve(ctx context.Context, id string, reviewer *identity.User) error {
	if !identity.IsAdmin(reviewer) {
		return &apperr.AuthorizationError{Action: "approve proposals"}
	}
	p, err := s.gw.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.Status != StatusPending {
		return &apperr.InvalidStateError{ID: id, State: string(p.Status), Action: "approve"}
	}

	by := actorOf(reviewer)
	err = s.gw.Transition(ctx, id, StatusPending, "approve", map[string]any{
		"status":     string(StatusApproved),
		"reviewedBy": by.value(),
		"reviewedAt": store.ServerTimestamp,
		"updatedAt":  store.ServerTimestamp,
	})
	if err != nil {
		return err
	}
	s.emit(EventApproved, id, by)

	p, err = s.gw.Get(ctx, id)
	if err != nil {
		return &apperr.PartialFailureError{ProposalID: id, Err: err}
	}
	if _, err := s.gw.Publish(ctx, p, by); err != nil {
		return &apperr.PartialFailureError{ProposalID: id, Err: err}
	}
	s.emit(EventPublished, id, by)
	return nil
}

// Publish retries the ApprovedLocation write for an approved proposal. It
// does nothing when the location already exists.
func (s *Service) Publish(ctx context.Context, id string, reviewer *identity.User) error {
	if !identity.IsAdmin(reviewer) {
		return &apperr.AuthorizationError{Action: "publish proposals"}
	}
	p, err := s.gw.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.Status != StatusApproved {
		return &apperr.InvalidStateError{ID: id, State: string(p.Status), Action: "publish"}
	}

	approver := actorOf(reviewer)
	if p.ReviewedBy != nil {
		approver = *p.ReviewedBy
	}
	created, err := s.gw.Publish(ctx, p, approver)
	if err != nil {
		return &apperr.StoreUnavailableError{Op: "publish proposal", Err: err}
	}
	if created {
		s.emit(EventPublished, id, actorOf(reviewer))
	}
	return nil
}

func (s *Service) Reject(ctx context.Context, id string, reviewer *identity.User, reason string) error {
	if !identity.IsAdmin(reviewer) {
		return &apperr.AuthorizationError{Action: "reject proposals"}
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return apperr.Invalid("reason", "required")
	}
	p, err := s.gw.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.Status != StatusPending {
		return &apperr.InvalidStateError{ID: id, State: string(p.Status), Action: "reject"}
	}

	by := actorOf(reviewer)
	err = s.gw.Transition(ctx, id, StatusPending, "reject", map[string]any{
		"status":          string(StatusRejected),
		"rejectionReason": reason,
		"reviewedBy":      by.value(),
		"reviewedAt":      store.ServerTimestamp,
		"updatedAt":       store.ServerTimestamp,
	})
	if err != nil {
		return err
	}
	s.emit(EventRejected, id, by)
	return nil
}

// Edit applies admin corrections in any state. Only keys present in
// changes are written. A latitude or longitude that does not parse, or is
// out of range, leaves the stored value as it was.
func (s *Service) Edit(ctx context.Context, id string, reviewer *identity.User, changes map[string]string) (Proposal, error) {
	if !identity.IsAdmin(reviewer) {
		return Proposal{}, &apperr.AuthorizationError{Action: "edit proposals"}
	}
	p, err := s.gw.Get(ctx, id)
	if err != nil {
		return Proposal{}, err
	}

	patch := map[string]any{}
	verr := &apperr.ValidationError{}
	var lat, lng float64
	var haveLat, haveLng bool
	if p.Coordinates != nil {
		lat, lng, haveLat, haveLng = p.Coordinates.Lat, p.Coordinates.Lng, true, true
	}
	coordsTouched := false

	for key, raw := range changes {
		value := strings.TrimSpace(raw)
		switch key {
		case "name":
			if value == "" {
				verr.Add("name", "required")
				continue
			}
			patch["name"] = value
		case "description":
			patch["description"] = value
		case "category":
			if !ValidCategory(value) {
				verr.Add("category", "must be one of "+strings.Join(Categories, ", "))
				continue
			}
			patch["category"] = value
		case "tags":
			patch["tags"] = value
		case "imageUrl":
			patch["imageUrl"] = value
		case "latitude":
			if f, err := strconv.ParseFloat(value, 64); err == nil && f >= -90 && f <= 90 {
				lat, haveLat, coordsTouched = f, true, true
			}
		case "longitude":
			if f, err := strconv.ParseFloat(value, 64); err == nil && f >= -180 && f <= 180 {
				lng, haveLng, coordsTouched = f, true, true
			}
		default:
			verr.Add(key, "not editable")
		}
	}
	if err := verr.OrNil(); err != nil {
		return Proposal{}, err
	}
	if coordsTouched && haveLat && haveLng {
		patch["location"] = docfields.CoordinatesValue(geo.Coordinates{Lat: lat, Lng: lng})
	}

	by := actorOf(reviewer)
	patch["editedBy"] = by.value()
	patch["editedAt"] = store.ServerTimestamp
	patch["updatedAt"] = store.ServerTimestamp
	if err := s.gw.Update(ctx, id, patch); err != nil {
		return Proposal{}, err
	}
	s.emit(EventEdited, id, by)
	return s.gw.Get(ctx, id)
}

// Delete removes the proposal in any state. A published ApprovedLocation
// is left in place.
func (s *Service) Delete(ctx context.Context, id string, reviewer *identity.User) error {
	if !identity.IsAdmin(reviewer) {
		return &apperr.AuthorizationError{Action: "delete proposals"}
	}
	if err := s.gw.Delete(ctx, id); err != nil {
		return err
	}
	s.emit(EventDeleted, id, actorOf(reviewer))
	return nil
}

func (s *Service) ListByStatus(ctx context.Context, status string, viewer *identity.User) ([]Proposal, error) {
	if !identity.IsAdmin(viewer) {
		return nil, &apperr.AuthorizationError{Action: "list proposals"}
	}
	switch status {
	case string(StatusPending), string(StatusApproved), string(StatusRejected), StatusAll:
	default:
		return nil, apperr.Invalid("status", "must be pending, approved, rejected or all")
	}
	return s.gw.List(ctx, status)
}

// Get is open to admins and to the proposal's submitter.
func (s *Service) Get(ctx context.Context, id string, viewer *identity.User) (Proposal, error) {
	if viewer == nil {
		return Proposal{}, &apperr.AuthorizationError{Action: "view proposals"}
	}
	p, err := s.gw.Get(ctx, id)
	if err != nil {
		return Proposal{}, err
	}
	if !identity.IsAdmin(viewer) && p.SubmittedBy.ID != viewer.ID {
		return Proposal{}, &apperr.AuthorizationError{Action: "view this proposal"}
	}
	return p, nil
}

// Vote records value (+1 or -1) for voter on a pending proposal, replacing
// any earlier vote by the same user.
func (s *Service) Vote(ctx context.Context, id string, voter *identity.User, value int) (Proposal, error) {
	if voter == nil || voter.ID == "" {
		return Proposal{}, &apperr.AuthorizationError{Action: "vote"}
	}
	if value != 1 && value != -1 {
		return Proposal{}, apperr.Invalid("value", "must be 1 or -1")
	}

	for attempt := 0; attempt < voteAttempts; attempt++ {
		p, err := s.gw.Get(ctx, id)
		if err != nil {
			return Proposal{}, err
		}
		if p.Status != StatusPending {
			return Proposal{}, &apperr.InvalidStateError{ID: id, State: string(p.Status), Action: "vote on"}
		}

		voters := map[string]any{}
		for k, v := range p.Voters {
			voters[k] = v
		}
		votes := p.Votes - p.Voters[voter.ID] + value
		voters[voter.ID] = value

		err = s.gw.UpdateVersioned(ctx, id, p.Version, map[string]any{
			"votes":     votes,
			"voters":    voters,
			"updatedAt": store.ServerTimestamp,
		})
		if errors.Is(err, errVersionConflict) {
			continue
		}
		if err != nil {
			return Proposal{}, err
		}
		return s.gw.Get(ctx, id)
	}
	return Proposal{}, &apperr.StoreUnavailableError{Op: "vote", Err: errVersionConflict}
}

// Mine returns the caller's own proposals with a per-status count.
func (s *Service) Mine(ctx context.Context, user *identity.User) (Mine, error) {
	if user == nil || user.ID == "" {
		return Mine{}, &apperr.AuthorizationError{Action: "list own proposals"}
	}
	proposals, err := s.gw.ListBySubmitter(ctx, user.ID)
	if err != nil {
		return Mine{}, err
	}
	out := Mine{Proposals: proposals}
	if out.Proposals == nil {
		out.Proposals = []Proposal{}
	}
	for _, p := range proposals {
		out.Stats.Total++
		switch p.Status {
		case StatusPending:
			out.Stats.Pending++
		case StatusApproved:
			out.Stats.Approved++
		case StatusRejected:
			out.Stats.Rejected++
		}
	}
	return out, nil
}
