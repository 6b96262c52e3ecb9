package workflow

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SplitText splits text at sentence boundaries and greedily packs sentences
// into chunks of at most maxRunes runes. A sentence longer than maxRunes is
// cut, preferring the last space inside the bound. Sentences end at '.', '!'
// or '?' followed by whitespace or end of text, and at newlines.
//
// maxRunes <= 0 returns the trimmed text as a single chunk.
func SplitText(text string, maxRunes int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if maxRunes <= 0 {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
		curLen  int
	)
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			curLen = 0
		}
	}

	for _, sentence := range splitSentences(text) {
		n := utf8.RuneCountInString(sentence)
		switch {
		case n > maxRunes:
			flush()
			chunks = append(chunks, hardCut(sentence, maxRunes)...)
		case curLen == 0:
			current.WriteString(sentence)
			curLen = n
		case curLen+1+n <= maxRunes:
			current.WriteByte(' ')
			current.WriteString(sentence)
			curLen += 1 + n
		default:
			flush()
			current.WriteString(sentence)
			curLen = n
		}
	}
	flush()
	return chunks
}

func splitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	emit := func(end int) {
		if s := strings.TrimSpace(text[start:end]); s != "" {
			out = append(out, strings.Join(strings.Fields(s), " "))
		}
		start = end
	}

	for i, r := range text {
		switch r {
		case '\n':
			emit(i)
		case '.', '!', '?':
			next := i + utf8.RuneLen(r)
			if next >= len(text) {
				continue
			}
			nr, _ := utf8.DecodeRuneInString(text[next:])
			if unicode.IsSpace(nr) {
				emit(next)
			}
		}
	}
	emit(len(text))
	return out
}

func hardCut(sentence string, maxRunes int) []string {
	var out []string
	runes := []rune(sentence)
	for len(runes) > maxRunes {
		cut := maxRunes
		for i := maxRunes; i > maxRunes/2; i-- {
			if unicode.IsSpace(runes[i]) {
				cut = i
				break
			}
		}
		if piece := strings.TrimSpace(string(runes[:cut])); piece != "" {
			out = append(out, piece)
		}
		runes = []rune(strings.TrimLeftFunc(string(runes[cut:]), unicode.IsSpace))
	}
	if piece := strings.TrimSpace(string(runes)); piece != "" {
		out = append(out, piece)
	}
	return out
}

// ChunkOutput is the artifact produced for one chunk.
type ChunkOutput struct {
	Index    int                `json:"index"`
	Data     []byte             `json:"data"`
	Metadata map[string]float64 `json:"metadata,omitempty"`
}

// MergedOutput is the ordered concatenation of chunk outputs.
type MergedOutput struct {
	Data     []byte
	Metadata map[string]float64
	Chunks   int
}

// MergeChunks concatenates Data in Index order and sums numeric metadata.
func MergeChunks(parts []ChunkOutput) MergedOutput {
	ordered := slices.Clone(parts)
	slices.SortStableFunc(ordered, func(a, b ChunkOutput) int { return a.Index - b.Index })

	merged := MergedOutput{Metadata: make(map[string]float64), Chunks: len(ordered)}
	size := 0
	for _, p := range ordered {
		size += len(p.Data)
	}
	merged.Data = make([]byte, 0, size)
	for _, p := range ordered {
		merged.Data = append(merged.Data, p.Data...)
		for k, v := range p.Metadata {
			merged.Metadata[k] += v
		}
	}
	return merged
}
