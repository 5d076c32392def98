package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/couchcryptid/disaster-alert-service/internal/domain"
)

// keywordLane is the result of the text scoring lane.
type keywordLane struct {
	raw        float64
	score      int
	disaster   domain.DisasterType
	confidence int
	factors    []string
}

// scoreText matches lower-cased text against the keyword tables. Each
// keyword counts once per text. The raw weighted sum is scaled by ten and
// capped at 100 so it shares the numeric lane's 0-100 banding.
func scoreText(text string, tables Tables) keywordLane {
	text = strings.ToLower(text)
	lane := keywordLane{disaster: domain.DisasterNone}

	for _, tier := range tables.Tiers {
		var matched []string
		for _, kw := range tier.Keywords {
			if strings.Contains(text, kw) {
				matched = append(matched, kw)
			}
		}
		if len(matched) == 0 {
			continue
		}
		lane.raw += float64(len(matched)) * tier.Weight
		lane.factors = append(lane.factors, fmt.Sprintf("%s keywords: %s", tier.Level, strings.Join(matched, ", ")))
	}

	for _, typ := range tables.Types {
		n := 0
		for _, kw := range typ.Keywords {
			if strings.Contains(text, kw) {
				n++
			}
		}
		if n > 0 {
			lane.disaster = typ.Type
			lane.confidence = int(math.Round(float64(n) / float64(len(typ.Keywords)) * 100))
			break
		}
	}

	lane.score = clamp(int(math.Round(lane.raw*10)), 0, 100)
	return lane
}
