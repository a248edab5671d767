package multilocation

import (
	"strings"

	"github.com/sells-group/lead-pipeline/internal/config"
	"github.com/sells-group/lead-pipeline/internal/model"
)

// Classification is the category assigned to a company name.
type Classification struct {
	Category   model.Category
	Confidence model.Confidence
	Score      int
}

// Classifier assigns categories by keyword length matched in the name.
type Classifier struct {
	categories []config.CategoryConfig
}

// NewClassifier uses the enabled categories of table, in file order.
func NewClassifier(table *config.CategoryTable) *Classifier {
	return &Classifier{categories: table.Enabled()}
}

// Classify scores every enabled category by the summed length of its
// keywords found in the lower-cased name. The first category with the
// highest score wins. No match falls back to restaurant_chain at low
// confidence.
func (c *Classifier) Classify(name string) Classification {
	lower := strings.ToLower(name)

	best := Classification{Category: model.CategoryRestaurantChain, Confidence: model.ConfidenceLow}
	for _, cat := range c.categories {
		score := 0
		for _, kw := range cat.Keywords {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				score += len(kw)
			}
		}
		if score > best.Score {
			best = Classification{Category: model.Category(cat.Name), Score: score}
		}
	}

	switch {
	case best.Score >= 15:
		best.Confidence = model.ConfidenceHigh
	case best.Score >= 8:
		best.Confidence = model.ConfidenceMedium
	default:
		best.Confidence = model.ConfidenceLow
	}
	return best
}

var placeTypeKeywords = map[model.Category][]string{
	model.CategoryStadiumArena:       {"stadium", "arena", "sports", "venue"},
	model.CategoryCasino:             {"casino", "gambling", "resort"},
	model.CategoryThemePark:          {"amusement", "theme", "attraction", "park"},
	model.CategoryUniversityDining:   {"university", "college", "campus", "school"},
	model.CategoryAirportConcessions: {"airport", "terminal", "aviation"},
	model.CategoryRestaurantChain:    {"restaurant", "food", "dining", "cafe", "bar"},
	model.CategoryGolfManagement:     {"golf", "country club", "club"},
	model.CategoryMarinaGroup:        {"marina", "yacht", "boating"},
	model.CategoryHotelFB:            {"hotel", "resort", "lodging", "inn"},
	model.CategoryEntertainmentVenue: {"theater", "theatre", "entertainment", "venue"},
}

// ValidateWithPlaceTypes cross-checks a category against Places business
// types: high when any type matches the category, else medium.
func ValidateWithPlaceTypes(category model.Category, types []string) model.Confidence {
	joined := strings.ToLower(strings.Join(types, " "))
	for _, kw := range placeTypeKeywords[category] {
		if strings.Contains(joined, kw) {
			return model.ConfidenceHigh
		}
	}
	return model.ConfidenceMedium
}
