package insight

import (
	"strings"

	"github.com/rajpdus/meeting-sidekick/internal/orchestrator/session"
)

// Categories of insight, by wording of the detail.
const (
	CategorySuggestion = "suggestions"
	CategoryFact       = "facts"
	CategoryOther      = "other"
)

var (
	suggestionWords = []string{"suggest", "should", "could"}
	factWords       = []string{"fact", "data", "according to"}
)

// Categorize groups a batch for display. Every category key is present.
func Categorize(batch []session.Insight) map[string][]session.Insight {
	out := map[string][]session.Insight{
		CategorySuggestion: {},
		CategoryFact:       {},
		CategoryOther:      {},
	}
	for _, in := range batch {
		cat := categoryOf(strings.ToLower(in.Detail))
		out[cat] = append(out[cat], in)
	}
	return out
}

func categoryOf(detail string) string {
	for _, w := range suggestionWords {
		if strings.Contains(detail, w) {
			return CategorySuggestion
		}
	}
	for _, w := range factWords {
		if strings.Contains(detail, w) {
			return CategoryFact
		}
	}
	return CategoryOther
}
