// Package apperr holds the error kinds returned by the domain services and
// their mapping onto HTTP responses.
package apperr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
)

type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError lists every offending field of a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Add(field, reason string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
}

// OrNil returns nil when no field was added.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Reason: reason}}}
}

type AuthorizationError struct {
	Action string
}

func (e *AuthorizationError) Error() string {
	return "not authorized to " + e.Action
}

type InvalidStateError struct {
	ID      string
	State   string
	Action  string
	Message string
}

func (e *InvalidStateError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("cannot %s proposal %s in state %q", e.Action, e.ID, e.State)
}

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// PartialFailureError reports a proposal whose approval was recorded but
// whose ApprovedLocation was not written.
type PartialFailureError struct {
	ProposalID string
	Err        error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("proposal %s approved but not published: %v", e.ProposalID, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

func Status(err error) int {
	var (
		validation  *ValidationError
		authz       *AuthorizationError
		state       *InvalidStateError
		notFound    *NotFoundError
		unavailable *StoreUnavailableError
		partial     *PartialFailureError
		fiberErr    *fiber.Error
	)
	switch {
	case errors.As(err, &validation):
		return fiber.StatusBadRequest
	case errors.As(err, &authz):
		return fiber.StatusForbidden
	case errors.As(err, &state):
		return fiber.StatusConflict
	case errors.As(err, &notFound):
		return fiber.StatusNotFound
	case errors.As(err, &partial):
		return fiber.StatusBadGateway
	case errors.As(err, &unavailable):
		return fiber.StatusServiceUnavailable
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	default:
		return fiber.StatusInternalServerError
	}
}

// Respond writes err as a JSON error body with its mapped status.
func Respond(c *fiber.Ctx, err error) error {
	body := fiber.Map{"error": err.Error()}

	var validation *ValidationError
	if errors.As(err, &validation) {
		body["fields"] = validation.Fields
	}
	var partial *PartialFailureError
	if errors.As(err, &partial) {
		body["proposal_id"] = partial.ProposalID
	}
	return c.Status(Status(err)).JSON(body)
}
