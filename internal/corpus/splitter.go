package corpus

import "strings"

const (
	// DefaultChunkSize is the target chunk length in characters.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is how many characters consecutive chunks share,
	// so a provision cut at a chunk boundary still appears whole somewhere.
	DefaultChunkOverlap = 200
)

// SplitText splits text into chunks of roughly size characters with the
// given overlap. Chunk boundaries prefer paragraph breaks, then line
// breaks, then spaces, falling back to a hard cut for unbroken runs.
func SplitText(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
	}
	if len(text) <= size {
		return []string{text}
	}

	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, strings.TrimSpace(text[start:]))
			break
		}

		end = breakPoint(text, start, end)
		chunk := strings.TrimSpace(text[start:end])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := end - overlap
		if next <= start {
			// Guarantee forward progress on pathological input.
			next = end
		}
		start = next
	}
	return chunks
}

// breakPoint finds the best split position in text[start:end], searching
// backward from end across the whole window. A hard cut at end happens
// only when the window holds no separator at all.
func breakPoint(text string, start, end int) int {
	window := text[start:end]

	for _, sep := range []string{"\n\n", "\n", " "} {
		if i := strings.LastIndex(window, sep); i > 0 {
			return start + i + len(sep)
		}
	}
	return end
}
