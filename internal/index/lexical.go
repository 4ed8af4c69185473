package index

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"ecommate/internal/domain"
)

var wordRe = regexp.MustCompile(`\p{Han}|\p{L}+(?:['’]\p{L}+)*`)

// lexicalSearch ranks refs by the Ochiai coefficient of their token sets.
func lexicalSearch(refs []domain.Reference, query string, topK int) []domain.SearchResult {
	qset := tokenSet(query)
	type pair struct {
		idx   int
		score float64
	}
	scores := make([]pair, len(refs))
	for i, r := range refs {
		scores[i] = pair{i, overlapOchiai(qset, indexText(r))}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if topK > len(scores) {
		topK = len(scores)
	}
	out := make([]domain.SearchResult, 0, topK)
	for _, p := range scores[:topK] {
		out = append(out, domain.SearchResult{Reference: refs[p.idx], Score: p.score})
	}
	return out
}

func tokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

// |A∩B| / sqrt(|A||B|)
func overlapOchiai(qset map[string]struct{}, text string) float64 {
	seen := tokenSet(text)
	if len(qset) == 0 || len(seen) == 0 {
		return 0
	}
	inter := 0
	for t := range seen {
		if _, ok := qset[t]; ok {
			inter++
		}
	}
	return float64(inter) / math.Sqrt(float64(len(qset))*float64(len(seen)))
}
