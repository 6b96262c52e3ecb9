package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitText(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxRunes int
		want     []string
	}{
		{name: "empty", text: "   ", maxRunes: 10, want: nil},
		{name: "no bound", text: " one. two. ", maxRunes: 0, want: []string{"one. two."}},
		{
			name:     "packs sentences greedily",
			text:     "One. Two! Three? Four",
			maxRunes: 10,
			want:     []string{"One. Two!", "Three?", "Four"},
		},
		{
			name:     "decimal point is not a boundary",
			text:     "3.14 is pi. Yes",
			maxRunes: 100,
			want:     []string{"3.14 is pi. Yes"},
		},
		{
			name:     "newlines end sentences",
			text:     "Line one\nLine two",
			maxRunes: 8,
			want:     []string{"Line one", "Line two"},
		},
		{
			name:     "long sentence is cut at spaces",
			text:     "aaa bbb ccc",
			maxRunes: 5,
			want:     []string{"aaa", "bbb", "ccc"},
		},
		{
			name:     "long word is hard cut",
			text:     "abcdefghij",
			maxRunes: 4,
			want:     []string{"abcd", "efgh", "ij"},
		},
		{
			name:     "counts runes not bytes",
			text:     "héllo wörld. ünïcode",
			maxRunes: 20,
			want:     []string{"héllo wörld. ünïcode"},
		},
		{
			name:     "collapses inner whitespace",
			text:     "Hello   there.\n\n  General   Kenobi.",
			maxRunes: 100,
			want:     []string{"Hello there. General Kenobi."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitText(tt.text, tt.maxRunes))
		})
	}
}

func TestMergeChunks(t *testing.T) {
	merged := MergeChunks([]ChunkOutput{
		{Index: 2, Data: []byte("C"), Metadata: map[string]float64{"duration_seconds": 1.5}},
		{Index: 0, Data: []byte("A"), Metadata: map[string]float64{"duration_seconds": 2}},
		{Index: 1, Data: []byte("B"), Metadata: map[string]float64{"duration_seconds": 0.5, "bytes": 1}},
	})

	assert.Equal(t, "ABC", string(merged.Data))
	assert.Equal(t, 3, merged.Chunks)
	assert.InDelta(t, 4.0, merged.Metadata["duration_seconds"], 1e-9)
	assert.InDelta(t, 1.0, merged.Metadata["bytes"], 1e-9)

	empty := MergeChunks(nil)
	assert.Empty(t, empty.Data)
	assert.Equal(t, 0, empty.Chunks)
}
