package identity

import (
	"context"
	"errors"

	"backend-pilanitrails/internal/store"
)

// Directory reads profile records from the users collection.
type Directory struct {
	store store.Store
}

func NewDirectory(s store.Store) *Directory {
	return &Directory{store: s}
}

// Lookup returns the profile for id. An authenticated caller without a
// profile record is a plain, non-admin user.
func (d *Directory) Lookup(ctx context.Context, id string) (*User, error) {
	doc, err := d.store.Get(ctx, store.Users, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return &User{ID: id}, nil
		}
		return nil, err
	}
	u := FromProfile(doc.ID, doc.Fields)
	return &u, nil
}
