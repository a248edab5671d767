package enrich

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/lead-pipeline/internal/fetcher"
	"github.com/sells-group/lead-pipeline/internal/model"
)

// posSystems lists each POS vendor and the phrases that identify it, in
// tie-break order.
var posSystems = []struct {
	name    string
	phrases []string
}{
	{"toast", []string{"toast pos", "toast tab", "toast restaurant"}},
	{"square", []string{"square pos", "square restaurant", "square for restaurants"}},
	{"clover", []string{"clover pos", "clover station", "clover flex"}},
	{"aloha", []string{"aloha pos", "ncr aloha", "aloha edc"}},
	{"micros", []string{"micros", "oracle micros", "simphony"}},
}

// POSMatch is the detected point-of-sale system.
type POSMatch struct {
	System     string
	Confidence model.Confidence
}

// POSDetector infers an operator's POS system from public text.
type POSDetector struct {
	fetcher fetcher.Fetcher
}

// NewPOSDetector returns a detector that reads websites through f.
func NewPOSDetector(f fetcher.Fetcher) *POSDetector {
	return &POSDetector{fetcher: f}
}

// Detect scans website and job-posting text for POS vendor phrases. Two or
// more phrase hits give high confidence, one gives medium. The first system
// to reach high wins, otherwise the first system matched.
func (d *POSDetector) Detect(websiteText, jobText string) Result[POSMatch] {
	combined := strings.ToLower(websiteText + " " + jobText)

	var best *POSMatch
	for _, sys := range posSystems {
		hits := 0
		for _, p := range sys.phrases {
			if strings.Contains(combined, p) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		conf := model.ConfidenceMedium
		if hits >= 2 {
			conf = model.ConfidenceHigh
		}
		if best == nil || (conf == model.ConfidenceHigh && best.Confidence != model.ConfidenceHigh) {
			best = &POSMatch{System: sys.name, Confidence: conf}
		}
	}

	if best == nil {
		return noSignal(POSMatch{Confidence: model.ConfidenceLow})
	}
	return found(*best)
}

// DetectSite fetches the operator homepage and runs Detect on its text.
func (d *POSDetector) DetectSite(ctx context.Context, website string) Result[POSMatch] {
	website = strings.TrimSpace(website)
	if website == "" || d.fetcher == nil {
		return noSignal(POSMatch{Confidence: model.ConfidenceLow})
	}
	if !strings.HasPrefix(website, "http") {
		website = "https://" + website
	}

	html, err := d.fetcher.Fetch(ctx, website, "pos_site")
	if err != nil {
		zap.L().Debug("enrich: pos site fetch failed", zap.String("url", website), zap.Error(err))
		return failed[POSMatch](err)
	}
	text, err := fetcher.TextOf(html)
	if err != nil {
		return failed[POSMatch](err)
	}
	return d.Detect(text, "")
}
