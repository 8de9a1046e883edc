package retrieval

import "sort"

// rankedList is one mode's search results in rank order (index 0 = best).
type rankedList struct {
	mode    Mode
	weight  float64
	results []RetrievedChunk
}

// reciprocalRankFusion combines independently-ranked lists into one fused
// ranking: for a chunk at rank r_i in list L_i with weight w_i, fused score
// = sum(w_i / (k + r_i)). A chunk missing from a list contributes 0 for
// that list. Ties are broken by insertion order across lists, which keeps
// the fusion deterministic. Each chunk's WinningMode is the mode of the list
// that contributed its largest term (the earlier list on a tie).
func reciprocalRankFusion(lists []rankedList) []RetrievedChunk {
	fused := make(map[string]*RetrievedChunk)
	top := make(map[string]float64)
	order := make([]string, 0)

	for _, list := range lists {
		for rank, rc := range list.results {
			score := list.weight / float64(rrfK+rank+1)
			if existing, ok := fused[rc.ChunkID]; ok {
				existing.Score += score
				existing.MatchedModes = appendMode(existing.MatchedModes, list.mode)
				if score > top[rc.ChunkID] {
					top[rc.ChunkID] = score
					existing.WinningMode = list.mode
				}
				continue
			}
			copyRC := rc
			copyRC.Score = score
			copyRC.MatchedModes = []Mode{list.mode}
			copyRC.WinningMode = list.mode
			top[rc.ChunkID] = score
			fused[rc.ChunkID] = &copyRC
			order = append(order, rc.ChunkID)
		}
	}

	out := make([]RetrievedChunk, 0, len(order))
	for _, id := range order {
		out = append(out, *fused[id])
	}
	sortByScoreDesc(out)
	return out
}

// dedupeByDocumentChunk collapses duplicates keyed by (document-id,
// chunk-index equivalent — here chunk-id, since our chunk IDs are already
// document-scoped), keeping the highest-scoring record and the union of
// modes that matched it, tagging the winner with the mode that produced
// its surviving (highest) score.
func dedupeByDocumentChunk(chunks []RetrievedChunk) []RetrievedChunk {
	best := make(map[string]*RetrievedChunk)
	order := make([]string, 0)

	for _, c := range chunks {
		key := c.DocumentID + ":" + c.ChunkID
		existing, ok := best[key]
		if !ok {
			copyC := c
			if len(copyC.MatchedModes) > 0 {
				copyC.WinningMode = copyC.MatchedModes[0]
			}
			best[key] = &copyC
			order = append(order, key)
			continue
		}
		existing.MatchedModes = dedupeModes(append(existing.MatchedModes, c.MatchedModes...))
		if c.Score > existing.Score {
			existing.Score = c.Score
			existing.Content = c.Content
			if len(c.MatchedModes) > 0 {
				existing.WinningMode = c.MatchedModes[0]
			}
		}
	}

	out := make([]RetrievedChunk, 0, len(order))
	for _, key := range order {
		out = append(out, *best[key])
	}
	sortByScoreDesc(out)
	return out
}

func appendMode(modes []Mode, m Mode) []Mode {
	for _, existing := range modes {
		if existing == m {
			return modes
		}
	}
	return append(modes, m)
}

func dedupeModes(modes []Mode) []Mode {
	var out []Mode
	for _, m := range modes {
		out = appendMode(out, m)
	}
	return out
}

func sortByScoreDesc(chunks []RetrievedChunk) {
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Score > chunks[j].Score })
}

func topN(chunks []RetrievedChunk, n int) []RetrievedChunk {
	if n <= 0 || n >= len(chunks) {
		return chunks
	}
	return chunks[:n]
}
