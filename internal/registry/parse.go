// Package registry scrapes state business registries (FL Sunbiz, GA eCorp,
// AL SoS) into model.RawEntity rows.
package registry

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-pipeline/internal/model"
)

// ParseFunc extracts entities from a search results page.
type ParseFunc func(html string) ([]model.RawEntity, error)

const (
	sunbizMinCols = 5
	looseMinCols  = 2
)

// ParseSunbiz parses FL Sunbiz search results. Rows come from
// table.search-results, falling back to any table when that matches
// nothing. Rows with fewer than 5 cells are skipped.
func ParseSunbiz(html string) ([]model.RawEntity, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "registry: parse sunbiz html")
	}

	out := sunbizRows(doc.Find("table.search-results tr"))
	if len(out) == 0 {
		out = sunbizRows(doc.Find("table tr"))
	}
	return out, nil
}

func sunbizRows(rows *goquery.Selection) []model.RawEntity {
	var out []model.RawEntity
	rows.Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cols := cellTexts(row)
		if len(cols) < sunbizMinCols {
			return
		}
		out = append(out, model.RawEntity{
			EntityName:      cols[0],
			EntityID:        cols[1],
			Status:          cols[2],
			FilingDate:      cols[3],
			PhysicalAddress: cols[4],
		})
	})
	return out
}

// ParseGA parses Georgia eCorp business search results.
func ParseGA(html string) ([]model.RawEntity, error) {
	return parseLoose(html, "ga")
}

// ParseAL parses Alabama SoS corporation name search output.
func ParseAL(html string) ([]model.RawEntity, error) {
	return parseLoose(html, "al")
}

// parseLoose handles the GA and AL layouts: name in the first cell, the
// remaining columns optional. A missing status reads as Active.
func parseLoose(html, label string) ([]model.RawEntity, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrapf(err, "registry: parse %s html", label)
	}

	var out []model.RawEntity
	doc.Find("table tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			return
		}
		cols := cellTexts(row)
		if len(cols) < looseMinCols || cols[0] == "" {
			return
		}
		out = append(out, model.RawEntity{
			EntityName:      cols[0],
			EntityID:        col(cols, 1, ""),
			Status:          col(cols, 2, "Active"),
			FilingDate:      col(cols, 3, ""),
			PhysicalAddress: col(cols, 4, ""),
		})
	})
	return out, nil
}

func cellTexts(row *goquery.Selection) []string {
	cells := row.Find("td")
	out := make([]string, 0, cells.Length())
	cells.Each(func(_ int, td *goquery.Selection) {
		out = append(out, strings.TrimSpace(td.Text()))
	})
	return out
}

func col(cols []string, i int, def string) string {
	if i < len(cols) {
		return cols[i]
	}
	return def
}
