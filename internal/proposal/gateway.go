package proposal

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"backend-pilanitrails/internal/shared/apperr"
	"backend-pilanitrails/internal/shared/docfields"
	"backend-pilanitrails/internal/store"
)

var errVersionConflict = errors.New("proposal changed concurrently")

// Gateway is the only code that touches the proposal and approved
// location collections. It decodes every stored shape into Proposal and
// maps store failures onto apperr kinds.
type Gateway struct {
	store store.Store
}

func NewGateway(s store.Store) *Gateway {
	return &Gateway{store: s}
}

func (g *Gateway) Create(ctx context.Context, fields map[string]any) (string, error) {
	id, err := g.store.Create(ctx, store.Proposals, fields)
	if err != nil {
		return "", &apperr.StoreUnavailableError{Op: "create proposal", Err: err}
	}
	return id, nil
}

func (g *Gateway) Get(ctx context.Context, id string) (Proposal, error) {
	doc, err := g.store.Get(ctx, store.Proposals, id)
	if err != nil {
		return Proposal{}, mapErr("get proposal", id, err)
	}
	return decode(doc), nil
}

// List returns proposals in status (or every proposal for StatusAll),
// newest first.
func (g *Gateway) List(ctx context.Context, status string) ([]Proposal, error) {
	q := store.Query{Newest: true}
	if status != StatusAll {
		q.Where = []store.Filter{statusFilter(Status(status))}
	}
	docs, err := g.store.Query(ctx, store.Proposals, q)
	if err != nil {
		return nil, &apperr.StoreUnavailableError{Op: "list proposals", Err: err}
	}
	out := make([]Proposal, 0, len(docs))
	for _, d := range docs {
		out = append(out, decode(d))
	}
	return out, nil
}

// ListBySubmitter also finds records that only carry the older userId key.
func (g *Gateway) ListBySubmitter(ctx context.Context, userID string) ([]Proposal, error) {
	seen := map[string]bool{}
	var out []Proposal
	for _, path := range []string{"submittedBy.id", "userId"} {
		docs, err := g.store.Query(ctx, store.Proposals, store.Query{
			Where:  []store.Filter{store.Where(path, userID)},
			Newest: true,
		})
		if err != nil {
			return nil, &apperr.StoreUnavailableError{Op: "list own proposals", Err: err}
		}
		for _, d := range docs {
			if seen[d.ID] {
				continue
			}
			seen[d.ID] = true
			out = append(out, decode(d))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// statusFilter matches stored status s. Records written before status was
// tracked carry none and decode as pending, so they match pending too.
func statusFilter(s Status) store.Filter {
	if s == StatusPending {
		return store.WhereOrMissing("status", string(s))
	}
	return store.Where("status", string(s))
}

// Transition applies fields only while the proposal is still in from.
func (g *Gateway) Transition(ctx context.Context, id string, from Status, action string, fields map[string]any) error {
	f := statusFilter(from)
	err := g.store.UpdateIf(ctx, store.Proposals, id, store.Condition{Path: f.Path, Equals: f.Value, OrMissing: f.OrMissing}, fields)
	if errors.Is(err, store.ErrConditionFailed) {
		return &apperr.InvalidStateError{
			ID:      id,
			Action:  action,
			Message: "proposal " + id + " is no longer " + string(from),
		}
	}
	if err != nil {
		return mapErr(action+" proposal", id, err)
	}
	return nil
}

func (g *Gateway) Update(ctx context.Context, id string, fields map[string]any) error {
	if err := g.store.Update(ctx, store.Proposals, id, fields); err != nil {
		return mapErr("update proposal", id, err)
	}
	return nil
}

// UpdateVersioned writes fields only if the proposal is still at version.
// A lost race returns errVersionConflict.
func (g *Gateway) UpdateVersioned(ctx context.Context, id string, version int64, fields map[string]any) error {
	err := g.store.UpdateIf(ctx, store.Proposals, id, store.Condition{Version: version}, fields)
	if errors.Is(err, store.ErrConditionFailed) {
		return errVersionConflict
	}
	if err != nil {
		return mapErr("update proposal", id, err)
	}
	return nil
}

func (g *Gateway) Delete(ctx context.Context, id string) error {
	if err := g.store.Delete(ctx, store.Proposals, id); err != nil {
		return mapErr("delete proposal", id, err)
	}
	return nil
}

// Publish writes the ApprovedLocation for p under p's id. It reports false
// when the location already existed.
func (g *Gateway) Publish(ctx context.Context, p Proposal, approver Actor) (bool, error) {
	fields := map[string]any{
		"name":         p.Name,
		"description":  p.Description,
		"category":     p.Category,
		"tags":         p.Tags,
		"imageUrl":     p.ImageURL,
		"approvedFrom": p.ID,
		"approvedBy":   approver.value(),
		"approvedAt":   store.ServerTimestamp,
	}
	if p.Coordinates != nil {
		fields["location"] = docfields.CoordinatesValue(*p.Coordinates)
	}
	err := g.store.CreateWithID(ctx, store.ApprovedLocations, p.ID, fields)
	if errors.Is(err, store.ErrAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func mapErr(op, id string, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return &apperr.NotFoundError{Kind: "proposal", ID: id}
	case errors.Is(err, store.ErrConditionFailed):
		return &apperr.InvalidStateError{ID: id, Action: op, Message: "proposal " + id + " changed during " + op}
	default:
		return &apperr.StoreUnavailableError{Op: op, Err: err}
	}
}

func decode(doc store.Document) Proposal {
	f := doc.Fields
	p := Proposal{
		ID:              doc.ID,
		Name:            docfields.String(f, "name", "Name"),
		Description:     docfields.String(f, "description", "Description"),
		Category:        docfields.String(f, "category", "Category"),
		Tags:            docfields.Text(f, "tags", "Tags"),
		ImageURL:        docfields.String(f, "imageUrl", "image", "Image URL"),
		Coordinates:     docfields.Coordinates(f),
		Status:          Status(docfields.String(f, "status")),
		SubmittedBy:     submitter(f),
		CreatedAt:       docfields.Time(f["createdAt"]),
		RejectionReason: docfields.String(f, "rejectionReason"),
		Votes:           docfields.Int(f["votes"]),
		Version:         doc.Version,
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = doc.CreatedAt
	}
	p.ReviewedBy = actorField(f["reviewedBy"])
	p.ReviewedAt = timeField(f["reviewedAt"])
	p.EditedBy = actorField(f["editedBy"])
	p.EditedAt = timeField(f["editedAt"])

	if voters, ok := f["voters"].(map[string]any); ok && len(voters) > 0 {
		p.Voters = make(map[string]int, len(voters))
		for k, v := range voters {
			p.Voters[k] = docfields.Int(v)
		}
	}
	return p
}

func submitter(f map[string]any) Actor {
	if a := actorField(f["submittedBy"]); a != nil {
		return *a
	}
	a := Actor{
		ID:    docfields.String(f, "userId"),
		Label: docfields.String(f, "userEmail", "proposedBy"),
	}
	if a.Label == "" {
		a.Label = a.ID
	}
	return a
}

// actorField accepts {id,label} objects and the plain strings older
// records hold (an email or a uid).
func actorField(v any) *Actor {
	switch t := v.(type) {
	case map[string]any:
		a := Actor{ID: docfields.String(t, "id"), Label: docfields.String(t, "label")}
		if a.ID == "" && a.Label == "" {
			return nil
		}
		return &a
	case string:
		if t == "" {
			return nil
		}
		a := Actor{Label: t}
		if !strings.Contains(t, "@") {
			a.ID = t
		}
		return &a
	}
	return nil
}

func timeField(v any) *time.Time {
	t := docfields.Time(v)
	if t.IsZero() {
		return nil
	}
	return &t
}
