package monitor

import (
	"strings"

	"trafficcam-capture/pkg/models"
)

// KeywordFilter selects incidents whose type or description mentions a keyword.
// An empty keyword list selects every incident.
type KeywordFilter struct {
	keywords []string
}

func NewKeywordFilter(keywords []string) KeywordFilter {
	f := KeywordFilter{}
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			f.keywords = append(f.keywords, k)
		}
	}
	return f
}

func (f KeywordFilter) Match(inc models.Incident) bool {
	if len(f.keywords) == 0 {
		return true
	}
	typ := strings.ToLower(inc.Type)
	desc := strings.ToLower(inc.Description)
	for _, k := range f.keywords {
		if strings.Contains(typ, k) || strings.Contains(desc, k) {
			return true
		}
	}
	return false
}
