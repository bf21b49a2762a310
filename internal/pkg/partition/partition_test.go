package partition

import (
	"slices"
	"testing"
)

func TestChunks(t *testing.T) {
	tests := []struct {
		name  string
		items []int
		size  int
		want  [][]int
	}{
		{name: "empty", items: nil, size: 3, want: nil},
		{name: "exact", items: []int{1, 2, 3, 4}, size: 2, want: [][]int{{1, 2}, {3, 4}}},
		{name: "remainder", items: []int{1, 2, 3, 4, 5}, size: 2, want: [][]int{{1, 2}, {3, 4}, {5}}},
		{name: "larger than input", items: []int{1, 2}, size: 100, want: [][]int{{1, 2}}},
		{name: "zero size", items: []int{1, 2, 3}, size: 0, want: [][]int{{1, 2, 3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Chunks(tt.items, tt.size)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d chunks, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if !slices.Equal(got[i], tt.want[i]) {
					t.Errorf("chunk %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestChunks_AppendDoesNotClobber(t *testing.T) {
	items := []int{1, 2, 3, 4}
	chunks := Chunks(items, 2)

	_ = append(chunks[0], 99)
	if items[2] != 3 {
		t.Errorf("appending to a chunk overwrote the next one: %v", items)
	}
}

func TestChunks_HundredAddresses(t *testing.T) {
	items := make([]int, 250)
	chunks := Chunks(items, 100)
	sizes := []int{len(chunks[0]), len(chunks[1]), len(chunks[2])}
	if !slices.Equal(sizes, []int{100, 100, 50}) {
		t.Errorf("sizes = %v", sizes)
	}
}
