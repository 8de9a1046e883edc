package ingest

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/ragcore/ragcore/internal/domain"
	"github.com/ragcore/ragcore/internal/store/graph"
)

// capitalizedRun matches a run of two or more consecutive capitalized
// words, the same lightweight heuristic graph search mode uses for
// query-side entity candidates, reused here on the content side during
// indexing.
var capitalizedRun = regexp.MustCompile(`\b([A-Z][a-zA-Z0-9]*(?:\s+[A-Z][a-zA-Z0-9]*){1,3})\b`)

var stopPhrases = map[string]bool{
	"The": true, "This": true, "That": true, "These": true, "Those": true,
}

// ExtractEntities returns candidate Entity/Relation pairs from a chunk of
// text using a simple capitalization heuristic rather than a full NER
// model, since model inference is explicitly out of scope for this
// package (embedding/LLM/reranker backends live in modelclient).
// Entities found within the same chunk are linked with a co-occurrence
// Relation, mirroring how a real extractor would report same-sentence
// mentions.
func ExtractEntities(knowledgeBaseID string, chunk domain.Chunk) ([]graph.Node, []graph.Edge) {
	matches := capitalizedRun.FindAllString(chunk.Text, -1)
	seen := make(map[string]graph.Node)
	var order []string

	for _, m := range matches {
		name := strings.TrimSpace(m)
		if name == "" || stopPhrases[strings.Fields(name)[0]] {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		node := graph.Node{
			ID:              uuid.NewSHA1(uuid.NameSpaceOID, []byte(knowledgeBaseID+":"+name)).String(),
			KnowledgeBaseID: knowledgeBaseID,
			Name:            name,
			Type:            "mention",
			Properties:      map[string]string{"source_chunk_id": chunk.ID},
		}
		seen[name] = node
		order = append(order, name)
	}

	nodes := make([]graph.Node, 0, len(order))
	for _, name := range order {
		nodes = append(nodes, seen[name])
	}

	var edges []graph.Edge
	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			edges = append(edges, graph.Edge{
				ID:     uuid.NewSHA1(uuid.NameSpaceOID, []byte(chunk.ID+":"+order[i]+":"+order[j])).String(),
				From:   seen[order[i]].ID,
				To:     seen[order[j]].ID,
				Type:   "co_occurs_with",
				Weight: 1,
			})
		}
	}
	return nodes, edges
}
