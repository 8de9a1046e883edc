package ingest

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ragcore/ragcore/internal/domain"
)

// separators are tried in priority order when recursively splitting text
// that exceeds the target chunk size.
var separators = []string{
	"\n\n\n",
	"\n\n",
	"\n",
	"。", "！", "？", "；",
	".", "!", "?", ";",
	",",
	" ",
}

var protectedRegionPatterns = []*regexp.Regexp{
	regexp.MustCompile("(?s)```.*?```"),             // fenced code block
	regexp.MustCompile(`(?m)^\|.+\|$(\n^\|.+\|$)+`), // markdown table
	regexp.MustCompile(`(?s)\$\$.*?\$\$`),           // LaTeX block math
	regexp.MustCompile(`\$[^$\n]+\$`),               // LaTeX inline math
	regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`),      // image reference
}

// pinProtectedRegions replaces every protected region with a placeholder
// token and returns the rewritten text alongside the pinned originals, so
// the recursive splitter never cuts through one.
func pinProtectedRegions(text string) (string, []string) {
	var regions []string
	out := text
	for _, pat := range protectedRegionPatterns {
		out = pat.ReplaceAllStringFunc(out, func(match string) string {
			regions = append(regions, match)
			return placeholderToken(len(regions) - 1)
		})
	}
	return out, regions
}

func placeholderToken(i int) string {
	return "\x00PROTECTED" + strconv.Itoa(i) + "\x00"
}

// restoreProtectedRegions substitutes placeholders back with their
// original text after splitting has completed.
func restoreProtectedRegions(text string, regions []string) string {
	for i, r := range regions {
		text = strings.ReplaceAll(text, placeholderToken(i), r)
	}
	return text
}

// ChunkText splits text into Chunks following the recursive,
// structure-preserving algorithm: protected regions (fenced code,
// tables, LaTeX, images) are pinned before splitting and restored
// after; remaining text is split at progressively finer separators
// until pieces fit within cfg.TargetSize, with cfg.OverlapSize of
// sentence-boundary-snapped overlap carried from each chunk into the
// next.
func ChunkText(documentID string, text string, cfg ChunkingConfig) []domain.Chunk {
	if cfg.TargetSize <= 0 {
		cfg = DefaultChunkingConfig
	}

	pinned, regions := pinProtectedRegions(text)
	pieces := recursiveSplit(pinned, cfg.TargetSize, cfg.MaxChunkSize)

	var withOverlap []string
	for i, piece := range pieces {
		if i == 0 {
			withOverlap = append(withOverlap, piece)
			continue
		}
		overlap := overlapSuffix(pieces[i-1], cfg.OverlapSize)
		withOverlap = append(withOverlap, overlap+piece)
	}

	chunks := make([]domain.Chunk, 0, len(withOverlap))
	for i, piece := range withOverlap {
		restored := restoreProtectedRegions(piece, regions)
		restored = strings.TrimSpace(restored)
		if restored == "" {
			continue
		}
		chunks = append(chunks, domain.Chunk{
			DocumentID: documentID,
			Index:      len(chunks),
			Text:       restored,
			TokenCount: estimateTokens(restored),
		})
	}
	return chunks
}

// placeholderPattern matches a pinned protected-region token anywhere in
// a string, so recursiveSplit can isolate it as an atom before applying
// separator-based splitting to the text around it.
var placeholderPattern = regexp.MustCompile(`\x00PROTECTED\d+\x00`)

// recursiveSplit splits text at the highest-priority separator available,
// recursing into any piece still over targetSize. Protected-region
// placeholders are isolated as atoms before splitting begins, so no
// separator search ever runs across one and no split can land inside it.
func recursiveSplit(text string, targetSize, maxChunkSize int) []string {
	if len([]rune(text)) <= targetSize {
		return []string{text}
	}

	if locs := placeholderPattern.FindAllStringIndex(text, -1); len(locs) > 0 {
		var atoms []string
		last := 0
		for _, loc := range locs {
			if loc[0] > last {
				atoms = append(atoms, recursiveSplitPlain(text[last:loc[0]], targetSize, maxChunkSize)...)
			}
			atoms = append(atoms, text[loc[0]:loc[1]])
			last = loc[1]
		}
		if last < len(text) {
			atoms = append(atoms, recursiveSplitPlain(text[last:], targetSize, maxChunkSize)...)
		}
		return packToTarget(atoms, targetSize)
	}

	return recursiveSplitPlain(text, targetSize, maxChunkSize)
}

// packToTarget greedily merges adjacent atoms (never splitting one) so
// consecutive small pieces are combined up toward targetSize instead of
// each becoming its own chunk.
func packToTarget(atoms []string, targetSize int) []string {
	var out []string
	var buf strings.Builder
	for _, a := range atoms {
		if buf.Len() > 0 && len([]rune(buf.String()))+len([]rune(a)) > targetSize {
			out = append(out, buf.String())
			buf.Reset()
		}
		buf.WriteString(a)
	}
	if buf.Len() > 0 {
		out = append(out, buf.String())
	}
	return out
}

// recursiveSplitPlain is recursiveSplit's separator-driven core, assumed
// to operate on text already free of protected-region placeholders.
func recursiveSplitPlain(text string, targetSize, maxChunkSize int) []string {
	if len([]rune(text)) <= targetSize {
		return []string{text}
	}

	for _, sep := range separators {
		if !strings.Contains(text, sep) {
			continue
		}
		parts := strings.Split(text, sep)
		var out []string
		var buf strings.Builder
		for i, p := range parts {
			candidate := buf.String()
			if candidate != "" {
				candidate += sep
			}
			candidate += p
			if len([]rune(candidate)) > targetSize && buf.Len() > 0 {
				out = append(out, buf.String())
				buf.Reset()
				buf.WriteString(p)
			} else {
				buf.Reset()
				buf.WriteString(candidate)
			}
			if i < len(parts)-1 {
				buf.WriteString(sep)
			}
		}
		if buf.Len() > 0 {
			out = append(out, strings.TrimSuffix(buf.String(), sep))
		}

		var final []string
		for _, piece := range out {
			switch {
			case len([]rune(piece)) > targetSize:
				final = append(final, recursiveSplitPlain(piece, targetSize, maxChunkSize)...)
			case strings.TrimSpace(piece) != "":
				final = append(final, piece)
			}
		}
		if len(final) > 0 {
			return final
		}
	}

	// No separator could split it further (e.g. one giant token); fall
	// back to hard character slicing.
	return hardSplit(text, targetSize)
}

func hardSplit(text string, size int) []string {
	runes := []rune(text)
	var out []string
	for i := 0; i < len(runes); i += size {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[i:end]))
	}
	return out
}

// sentenceEnd matches the same terminators used as separators, for
// snapping overlap windows to a sentence boundary.
var sentenceEnd = regexp.MustCompile(`[.!?;。！？；]\s`)

// overlapSuffix returns the last overlapSize characters of text, snapped
// forward to the nearest sentence boundary inside that window so overlap
// never starts mid-sentence.
func overlapSuffix(text string, overlapSize int) string {
	runes := []rune(text)
	if overlapSize <= 0 || len(runes) == 0 {
		return ""
	}
	start := len(runes) - overlapSize
	if start < 0 {
		start = 0
	}
	window := string(runes[start:])

	if loc := sentenceEnd.FindStringIndex(window); loc != nil {
		return window[loc[1]:]
	}
	return window
}

// estimateTokens approximates token count from character count (~4
// characters per token), avoiding a tokenizer dependency for chunk
// bookkeeping purposes.
func estimateTokens(text string) int {
	n := len([]rune(text)) / 4
	if n == 0 && text != "" {
		n = 1
	}
	return n
}
