package location

import (
	"iter"

	"github.com/paulmach/orb/geojson"
)

// FeatureCollection renders locations as map points. Locations without
// coordinates are skipped.
func FeatureCollection(locations iter.Seq[Location]) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for loc := range locations {
		if loc.Coordinates == nil {
			continue
		}
		feature := geojson.NewFeature(loc.Coordinates.Point())
		feature.ID = loc.ID
		feature.Properties = geojson.Properties{
			"id":          loc.ID,
			"name":        loc.Name,
			"description": loc.Description,
			"category":    loc.Category,
		}
		if loc.ImageURL != "" {
			feature.Properties["imageUrl"] = loc.ImageURL
		}
		fc.Append(feature)
	}
	return fc
}
