package location

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backend-pilanitrails/internal/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
)

func newTestApp(t *testing.T, engine *Engine) *fiber.App {
	t.Helper()
	app := fiber.New()
	RegisterRoutes(app.Group("/locations"), engine)
	return app
}

func readyEngine(t *testing.T) (*Engine, store.Store) {
	t.Helper()
	mem := store.NewMemory(nil)
	publish(t, mem, "a", "Central Library", "landmark")
	publish(t, mem, "b", "Giani's", "food")
	engine := NewEngine(mem)
	if err := engine.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return engine, mem
}

func getJSON(t *testing.T, app *fiber.App, target string, out any) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(body, out); err != nil {
			t.Fatalf("decode %s: %v", body, err)
		}
	}
	return resp.StatusCode
}

func TestHandlersListFilters(t *testing.T) {
	engine, _ := readyEngine(t)
	app := newTestApp(t, engine)

	var all []Location
	if code := getJSON(t, app, "/locations", &all); code != http.StatusOK || len(all) != 2 {
		t.Fatalf("unexpected list %d %+v", code, all)
	}

	var filtered []Location
	if code := getJSON(t, app, "/locations?q=LIB&category=All", &filtered); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if len(filtered) != 1 || filtered[0].Name != "Central Library" {
		t.Fatalf("unexpected filter result %+v", filtered)
	}

	var none []Location
	getJSON(t, app, "/locations?category=park", &none)
	if len(none) != 0 {
		t.Fatalf("expected no parks, got %+v", none)
	}
}

func TestHandlersEmptyResultsEncodeAsArray(t *testing.T) {
	engine, _ := readyEngine(t)
	app := newTestApp(t, engine)

	for _, target := range []string{"/locations?q=zzz", "/locations/nearby?lat=0&lng=0"} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
		if err != nil {
			t.Fatalf("%s: request error: %v", target, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "[]" {
			t.Fatalf("%s: expected 200 [], got %d %s", target, resp.StatusCode, body)
		}
	}
}

func TestHandlersCategories(t *testing.T) {
	engine, _ := readyEngine(t)
	var cats []string
	getJSON(t, newTestApp(t, engine), "/locations/categories", &cats)
	if strings.Join(cats, ",") != "All,landmark,food" {
		t.Fatalf("unexpected categories %v", cats)
	}
}

func TestHandlersNotReady(t *testing.T) {
	app := newTestApp(t, NewEngine(store.NewMemory(nil)))
	if code := getJSON(t, app, "/locations", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
}

func TestHandlersNearby(t *testing.T) {
	engine, _ := readyEngine(t)
	app := newTestApp(t, engine)

	var near []Location
	if code := getJSON(t, app, "/locations/nearby?lat=28.36&lng=75.58&radius_km=1", &near); code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	if len(near) != 2 {
		t.Fatalf("expected both locations nearby, got %+v", near)
	}

	getJSON(t, app, "/locations/nearby?lat=0&lng=0", &near)
	if len(near) != 0 {
		t.Fatalf("expected nothing near null island, got %+v", near)
	}

	for _, target := range []string{
		"/locations/nearby?lng=75.58",
		"/locations/nearby?lat=abc&lng=75.58",
		"/locations/nearby?lat=95&lng=75.58",
		"/locations/nearby?lat=28.36&lng=75.58&radius_km=-1",
	} {
		if code := getJSON(t, app, target, nil); code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, code)
		}
	}
}

func TestHandlersGeoJSON(t *testing.T) {
	engine, _ := readyEngine(t)
	resp, err := newTestApp(t, engine).Test(httptest.NewRequest(http.MethodGet, "/locations/geojson?category=food", nil))
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	defer resp.Body.Close()
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "application/geo+json") {
		t.Fatalf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fc.Type != "FeatureCollection" || len(fc.Features) != 1 || fc.Features[0].Properties["name"] != "Giani's" {
		t.Fatalf("unexpected collection %+v", fc)
	}
}

func TestHandlersWebsocketUpgradeRequired(t *testing.T) {
	engine, _ := readyEngine(t)
	if code := getJSON(t, newTestApp(t, engine), "/locations/ws", nil); code != http.StatusUpgradeRequired {
		t.Fatalf("expected 426, got %d", code)
	}
}

func TestHandlersWebsocketFeed(t *testing.T) {
	engine, mem := readyEngine(t)
	app := newTestApp(t, engine)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	defer ln.Close()

	go func() {
		_ = app.Listener(ln)
	}()
	defer func() { _ = app.Shutdown() }()

	wsURL := "ws://" + ln.Addr().String() + "/locations/ws?q=lib"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	first := readFrame(t, conn)
	if len(first.Locations) != 1 || first.Locations[0].Name != "Central Library" {
		t.Fatalf("unexpected first frame %+v", first)
	}
	if len(first.Categories) != 3 {
		t.Fatalf("categories should cover the unfiltered set, got %v", first.Categories)
	}

	publish(t, mem, "c", "Library Lawns", "park")
	for {
		frame := readFrame(t, conn)
		if len(frame.Locations) == 2 {
			break
		}
	}

	if err := conn.WriteJSON(Criteria{Category: "food"}); err != nil {
		t.Fatalf("write error: %v", err)
	}
	for {
		frame := readFrame(t, conn)
		if len(frame.Locations) == 1 && frame.Locations[0].Name == "Giani's" {
			break
		}
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) snapshotMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg snapshotMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read error: %v", err)
	}
	if msg.Error != "" {
		t.Fatalf("feed error: %s", msg.Error)
	}
	return msg
}
