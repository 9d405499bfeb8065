// Package identity resolves who is calling and whether they may moderate.
package identity

import "strings"

type User struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Admin       bool   `json:"is_admin"`
}

// IsAdmin is the only admin predicate in the service. A nil user is never
// an admin.
func IsAdmin(u *User) bool {
	return u != nil && u.Admin
}

// Label is the human-readable actor name stored on review metadata.
func (u *User) Label() string {
	switch {
	case u.Email != "":
		return u.Email
	case u.DisplayName != "":
		return u.DisplayName
	default:
		return u.ID
	}
}

// FromProfile builds a User from a profile document. Older profiles mark
// admins with isAdmin (bool or "true"), admin, or role "admin"; all of them
// collapse into Admin here.
func FromProfile(id string, fields map[string]any) User {
	u := User{ID: id}
	if s, ok := fields["email"].(string); ok {
		u.Email = s
	}
	if s, ok := fields["displayName"].(string); ok {
		u.DisplayName = s
	}
	u.Admin = adminMarker(fields)
	return u
}

func adminMarker(fields map[string]any) bool {
	switch v := fields["isAdmin"].(type) {
	case bool:
		if v {
			return true
		}
	case string:
		if strings.EqualFold(v, "true") {
			return true
		}
	}
	if v, ok := fields["admin"].(bool); ok && v {
		return true
	}
	if v, ok := fields["role"].(string); ok && v == "admin" {
		return true
	}
	return false
}
