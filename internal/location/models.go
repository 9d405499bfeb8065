package location

import (
	"time"

	"backend-pilanitrails/internal/shared/docfields"
	"backend-pilanitrails/internal/shared/geo"
	"backend-pilanitrails/internal/store"
)

// AllCategories is the category criterion that matches everything.
const AllCategories = "All"

// OtherCategory stands in for a missing category in the category list.
const OtherCategory = "Other"

// Location is a published, publicly visible place.
type Location struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	Category     string           `json:"category"`
	Tags         string           `json:"tags,omitempty"`
	ImageURL     string           `json:"imageUrl,omitempty"`
	Coordinates  *geo.Coordinates `json:"coordinates,omitempty"`
	ApprovedFrom string           `json:"approvedFrom,omitempty"`
	ApprovedBy   string           `json:"approvedBy,omitempty"`
	ApprovedAt   *time.Time       `json:"approvedAt,omitempty"`
}

type Criteria struct {
	Q        string `json:"q" query:"q"`
	Category string `json:"category" query:"category"`
}

func fromDocument(doc store.Document) Location {
	f := doc.Fields
	loc := Location{
		ID:           doc.ID,
		Name:         docfields.String(f, "name", "Name"),
		Description:  docfields.String(f, "description", "Description"),
		Category:     docfields.String(f, "category", "Category"),
		Tags:         docfields.Text(f, "tags", "Tags"),
		ImageURL:     docfields.String(f, "imageUrl", "image", "Image URL"),
		Coordinates:  docfields.Coordinates(f),
		ApprovedFrom: docfields.String(f, "approvedFrom"),
	}
	switch by := f["approvedBy"].(type) {
	case string:
		loc.ApprovedBy = by
	case map[string]any:
		loc.ApprovedBy = docfields.String(by, "label", "id")
	}
	if t := docfields.Time(f["approvedAt"]); !t.IsZero() {
		loc.ApprovedAt = &t
	}
	return loc
}

func fromDocuments(docs []store.Document) []Location {
	out := make([]Location, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDocument(d))
	}
	return out
}
