package scorer

import "github.com/sells-group/lead-pipeline/internal/model"

// Dedup drops entities whose exact EntityName is in existing. Order is kept.
func Dedup(entities []model.RawEntity, existing map[string]struct{}) []model.RawEntity {
	out := make([]model.RawEntity, 0, len(entities))
	for _, e := range entities {
		if _, ok := existing[e.EntityName]; ok {
			continue
		}
		out = append(out, e)
	}
	return out
}

// NameSet builds a Dedup lookup from names.
func NameSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}
