package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"backend-pilanitrails/internal/store"

	"github.com/gofiber/fiber/v2"
)

type stubVerifier map[string]string

func (s stubVerifier) ValidateAccessToken(token string) (string, error) {
	id, ok := s[token]
	if !ok {
		return "", errors.New("token invalid")
	}
	return id, nil
}

func TestFromProfileAdminMarkers(t *testing.T) {
	cases := []struct {
		name   string
		fields map[string]any
		want   bool
	}{
		{"isAdmin bool", map[string]any{"isAdmin": true}, true},
		{"isAdmin string", map[string]any{"isAdmin": "TRUE"}, true},
		{"admin flag", map[string]any{"admin": true}, true},
		{"role", map[string]any{"role": "admin"}, true},
		{"role user", map[string]any{"role": "user"}, false},
		{"isAdmin false", map[string]any{"isAdmin": false}, false},
		{"empty", map[string]any{}, false},
	}
	for _, tc := range cases {
		if got := FromProfile("u1", tc.fields).Admin; got != tc.want {
			t.Fatalf("%s: admin = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsAdminNil(t *testing.T) {
	if IsAdmin(nil) {
		t.Fatalf("nil user must not be admin")
	}
	if !IsAdmin(&User{ID: "a", Admin: true}) {
		t.Fatalf("expected admin")
	}
}

func TestLabelFallsBack(t *testing.T) {
	if (&User{ID: "u1", Email: "a@b.c"}).Label() != "a@b.c" {
		t.Fatalf("expected email label")
	}
	if (&User{ID: "u1"}).Label() != "u1" {
		t.Fatalf("expected id label")
	}
}

func TestDirectoryLookup(t *testing.T) {
	s := store.NewMemory(nil)
	ctx := context.Background()
	_ = s.CreateWithID(ctx, store.Users, "admin-1", map[string]any{"email": "root@pilani.in", "role": "admin"})

	dir := NewDirectory(s)
	u, err := dir.Lookup(ctx, "admin-1")
	if err != nil || !u.Admin || u.Email != "root@pilani.in" {
		t.Fatalf("unexpected admin lookup %+v %v", u, err)
	}
	u, err = dir.Lookup(ctx, "ghost")
	if err != nil || u.Admin || u.ID != "ghost" {
		t.Fatalf("missing profile should be a plain user, got %+v %v", u, err)
	}
}

func TestMiddlewareAndMe(t *testing.T) {
	s := store.NewMemory(nil)
	_ = s.CreateWithID(context.Background(), store.Users, "u1", map[string]any{"email": "u1@pilani.in", "isAdmin": "true"})

	app := fiber.New()
	RegisterRoutes(app, Middleware(stubVerifier{"good": "u1"}, NewDirectory(s)))

	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/me", nil))
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized without token, got %d", resp.StatusCode)
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer bad")
	resp, _ = app.Test(req)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for bad token, got %d", resp.StatusCode)
	}

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	resp, err := app.Test(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ok, got %v", err)
	}
	var u User
	_ = json.NewDecoder(resp.Body).Decode(&u)
	if u.ID != "u1" || !u.Admin {
		t.Fatalf("unexpected user %+v", u)
	}
}

func TestBearerFromHeader(t *testing.T) {
	if bearerFromHeader("bad") != "" {
		t.Fatalf("expected empty token")
	}
	if bearerFromHeader("bearer tok") != "tok" {
		t.Fatalf("expected token")
	}
}
