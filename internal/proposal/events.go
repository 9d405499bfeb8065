package proposal

import (
	"encoding/json"
	"fmt"
	"log"
	"time"
)

const (
	EventSubmitted = "submitted"
	EventApproved  = "approved"
	EventRejected  = "rejected"
	EventEdited    = "edited"
	EventDeleted   = "deleted"
	EventPublished = "published"
)

// Publisher is the slice of *nats.Conn used for lifecycle events.
type Publisher interface {
	Publish(subject string, data []byte) error
}

type Event struct {
	Type       string    `json:"type"`
	ProposalID string    `json:"proposal_id"`
	Actor      Actor     `json:"actor"`
	At         time.Time `json:"at"`
}

func Subject(eventType string) string {
	return fmt.Sprintf("trails.proposal.%s", eventType)
}

// emit is fire-and-forget: a failed publish is logged and the operation
// that caused it still succeeds.
func (s *Service) emit(eventType, proposalID string, actor Actor) {
	if s.events == nil {
		return
	}
	msg, _ := json.Marshal(Event{
		Type:       eventType,
		ProposalID: proposalID,
		Actor:      actor,
		At:         time.Now().UTC(),
	})
	if err := s.events.Publish(Subject(eventType), msg); err != nil {
		log.Printf("failed to publish %s event for proposal %s: %v", eventType, proposalID, err)
	}
}
