package retrieval

import (
	"hash/fnv"
	"regexp"
	"strings"
)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "can": true, "shall": true, "to": true,
	"of": true, "in": true, "for": true, "on": true, "with": true,
	"at": true, "by": true, "from": true, "as": true, "into": true,
	"through": true, "during": true, "before": true, "after": true,
	"what": true, "where": true, "when": true, "how": true, "which": true,
	"who": true, "whom": true, "this": true, "that": true, "these": true,
	"those": true, "i": true, "me": true, "my": true, "it": true,
	"its": true, "and": true, "but": true, "or": true, "not": true,
}

// extractKeywords does simple stopword-filtered keyword extraction, the
// same tokenization engine/rag.Service used for graph enrichment, reused
// here to build the sparse mode's term vector.
func extractKeywords(query string) []string {
	words := strings.Fields(strings.ToLower(query))
	var keywords []string
	for _, w := range words {
		w = strings.Trim(w, "?.,!;:'\"")
		if len(w) > 2 && !stopWords[w] {
			keywords = append(keywords, w)
		}
	}
	return keywords
}

// sparseTerms builds a term-frequency sparse vector keyed by a stable hash
// of each keyword, matching vector.Store.SearchSparse's map[uint32]float32
// signature. There is no learned sparse encoder (e.g. SPLADE) in this
// stack, so term frequency over the stopword-filtered keyword set stands
// in for it.
func sparseTerms(query string) map[uint32]float32 {
	keywords := extractKeywords(query)
	terms := make(map[uint32]float32, len(keywords))
	for _, kw := range keywords {
		terms[termHash(kw)]++
	}
	return terms
}

func termHash(term string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(term))
	return h.Sum32()
}

// capitalizedRun matches a run of two or more consecutive capitalized
// words, the same pattern ingest.ExtractEntities uses on the content side.
// Unlike ExtractEntities, extractEntityCandidates keeps runs that start
// with "The", "This", "That", "These" or "Those".
var capitalizedRun = regexp.MustCompile(`\b([A-Z][a-zA-Z0-9]*(?:\s+[A-Z][a-zA-Z0-9]*){1,3})\b`)

// extractEntityCandidates returns candidate entity names from a query
// string for the graph mode's traversal seed, using lightweight
// capitalized-run tokenization rather than a full NER pass.
func extractEntityCandidates(query string) []string {
	matches := capitalizedRun.FindAllString(query, -1)
	seen := make(map[string]bool)
	var out []string
	for _, m := range matches {
		name := strings.TrimSpace(m)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
