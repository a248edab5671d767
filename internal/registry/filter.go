package registry

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/model"
)

// Filter keeps the entities that pass a single qualification check.
type Filter struct {
	Name string
	Keep func(model.RawEntity) bool
}

// FilterActive keeps active entities. strict requires the status to equal
// ACTIVE ignoring case (Sunbiz); otherwise the status only needs to contain
// it (GA, AL).
func FilterActive(strict bool) Filter {
	return Filter{Name: "active", Keep: func(e model.RawEntity) bool {
		status := strings.ToUpper(strings.TrimSpace(e.Status))
		if strict {
			return status == "ACTIVE"
		}
		return strings.Contains(status, "ACTIVE")
	}}
}

// FilterFiledSince keeps entities filed on or after cutoff. Missing or
// unparseable dates fail.
func FilterFiledSince(cutoff time.Time) Filter {
	return Filter{Name: "date", Keep: func(e model.RawEntity) bool {
		filed, ok := e.FiledAt()
		return ok && !filed.Before(cutoff)
	}}
}

// FilterPhysicalAddress keeps entities with a street address.
func FilterPhysicalAddress() Filter {
	return Filter{Name: "address", Keep: func(e model.RawEntity) bool {
		addr := strings.TrimSpace(e.PhysicalAddress)
		return addr != "" && !strings.Contains(strings.ToUpper(addr), "PO BOX")
	}}
}

// FilterKeywords keeps entities whose lower-cased name contains any keyword.
// No keywords keeps everything.
func FilterKeywords(keywords []string) Filter {
	kw := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kw = append(kw, k)
		}
	}
	return Filter{Name: "keyword", Keep: func(e model.RawEntity) bool {
		if len(kw) == 0 {
			return true
		}
		return containsAnyKeyword(strings.ToLower(e.EntityName), kw) != ""
	}}
}

// Apply runs filters in order, logging the surviving count after each.
func Apply(log *zap.Logger, entities []model.RawEntity, filters ...Filter) []model.RawEntity {
	log.Info("registry: table rows found", zap.Int("count", len(entities)))
	out := entities
	for _, f := range filters {
		kept := make([]model.RawEntity, 0, len(out))
		for _, e := range out {
			if f.Keep(e) {
				kept = append(kept, e)
			}
		}
		out = kept
		log.Info("registry: after filter", zap.String("filter", f.Name), zap.Int("count", len(out)))
	}
	return out
}

// containsAnyKeyword returns the first keyword found in name, or "".
func containsAnyKeyword(name string, keywords []string) string {
	for _, k := range keywords {
		if strings.Contains(name, k) {
			return k
		}
	}
	return ""
}
