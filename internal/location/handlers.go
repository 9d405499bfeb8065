package location

import (
	"context"
	"encoding/json"
	"iter"
	"log"
	"slices"
	"strconv"

	"backend-pilanitrails/internal/shared/apperr"
	"backend-pilanitrails/internal/shared/geo"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const defaultRadiusKm = 5

// snapshotMessage is one frame of the WebSocket feed.
type snapshotMessage struct {
	Locations  []Location `json:"locations"`
	Categories []string   `json:"categories"`
	Error      string     `json:"error,omitempty"`
}

func RegisterRoutes(r fiber.Router, engine *Engine) {
	r.Get("/", func(c *fiber.Ctx) error {
		var criteria Criteria
		if err := c.QueryParser(&criteria); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		locations, err := engine.Locations()
		if err != nil {
			return apperr.Respond(c, err)
		}
		return c.JSON(collect(Filter(locations, criteria)))
	})

	r.Get("/categories", func(c *fiber.Ctx) error {
		locations, err := engine.Locations()
		if err != nil {
			return apperr.Respond(c, err)
		}
		return c.JSON(DistinctCategories(locations))
	})

	r.Get("/nearby", func(c *fiber.Ctx) error {
		origin, radius, err := nearbyParams(c)
		if err != nil {
			return apperr.Respond(c, err)
		}
		locations, err := engine.Locations()
		if err != nil {
			return apperr.Respond(c, err)
		}
		return c.JSON(collect(WithinRadius(locations, origin, radius)))
	})

	r.Get("/geojson", func(c *fiber.Ctx) error {
		var criteria Criteria
		if err := c.QueryParser(&criteria); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		locations, err := engine.Locations()
		if err != nil {
			return apperr.Respond(c, err)
		}
		c.Set(fiber.HeaderContentType, "application/geo+json")
		return c.JSON(FeatureCollection(Filter(locations, criteria)))
	})

	r.Get("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		c.Locals("criteria", Criteria{Q: c.Query("q"), Category: c.Query("category")})
		return c.Next()
	}, websocket.New(func(c *websocket.Conn) {
		serveFeed(c, engine)
	}))
}

// serveFeed pushes a filtered snapshot on every change. The client may send
// new criteria as JSON at any time; the current snapshot is re-sent
// filtered by them.
func serveFeed(c *websocket.Conn, engine *Engine) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := engine.Subscribe(ctx)
	if err != nil {
		_ = c.WriteJSON(snapshotMessage{Error: err.Error()})
		return
	}
	defer sub.Close()

	criteria, _ := c.Locals("criteria").(Criteria)
	updates := make(chan Criteria, 1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		var current []Location
		loaded := false
		for {
			select {
			case <-ctx.Done():
				return
			case next := <-updates:
				criteria = next
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				if ev.Err != nil {
					_ = c.WriteJSON(snapshotMessage{Error: ev.Err.Error()})
					_ = c.Close()
					return
				}
				current = ev.Locations
				loaded = true
			}
			if !loaded {
				continue
			}
			msg := snapshotMessage{
				Locations:  collect(Filter(current, criteria)),
				Categories: DistinctCategories(current),
			}
			if err := c.WriteJSON(msg); err != nil {
				log.Printf("location feed write failed: %v", err)
				return
			}
		}
	}()

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			break
		}
		var next Criteria
		if err := json.Unmarshal(raw, &next); err != nil {
			continue
		}
		select {
		case <-updates:
		default:
		}
		updates <- next
	}
	cancel()
	<-done
}

// collect never returns nil so empty results encode as [].
func collect(seq iter.Seq[Location]) []Location {
	return slices.AppendSeq([]Location{}, seq)
}

func nearbyParams(c *fiber.Ctx) (geo.Coordinates, float64, error) {
	verr := &apperr.ValidationError{}
	lat, err := strconv.ParseFloat(c.Query("lat"), 64)
	if err != nil {
		verr.Add("lat", "must be a number")
	}
	lng, err := strconv.ParseFloat(c.Query("lng"), 64)
	if err != nil {
		verr.Add("lng", "must be a number")
	}
	radius := float64(defaultRadiusKm)
	if raw := c.Query("radius_km"); raw != "" {
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil || radius < 0 {
			verr.Add("radius_km", "must be a non-negative number")
		}
	}
	origin := geo.Coordinates{Lat: lat, Lng: lng}
	if len(verr.Fields) == 0 && !origin.Valid() {
		verr.Add("lat", "coordinates out of range")
	}
	return origin, radius, verr.OrNil()
}
