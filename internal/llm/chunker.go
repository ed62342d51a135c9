package llm

import "fmt"

// Chunker splits normalized text into fixed-size overlapping windows.
// Sizes are measured in runes so multi-byte characters are never cut.
//
// Windows start at i*(Size-Overlap) and the last window ends at the end of
// the text. No window is filtered out, whatever its content.
type Chunker struct {
	Size    int
	Overlap int
}

// NewChunker validates the window geometry. Size must be positive and
// Overlap must lie in [0, Size).
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be > 0, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Chunker{Size: size, Overlap: overlap}, nil
}

// Split returns the ordered windows covering text. An empty text yields no
// chunks; a text no longer than Size yields exactly one.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return []string{}
	}

	runes := []rune(text)
	n := len(runes)
	step := c.Size - c.Overlap

	chunks := make([]string, 0, ChunkCount(n, c.Size, c.Overlap))
	for start := 0; ; start += step {
		end := start + c.Size
		if end > n {
			end = n
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == n {
			break
		}
	}
	return chunks
}

// SplitText is a convenience wrapper around NewChunker and Split.
func SplitText(text string, size, overlap int) ([]string, error) {
	c, err := NewChunker(size, overlap)
	if err != nil {
		return nil, err
	}
	return c.Split(text), nil
}

// ChunkCount returns how many windows Split produces for a text of length
// runes: 1 when length <= size, otherwise ceil((length-overlap)/(size-overlap)).
func ChunkCount(length, size, overlap int) int {
	if length <= 0 {
		return 0
	}
	if length <= size {
		return 1
	}
	step := size - overlap
	return (length - overlap + step - 1) / step
}
