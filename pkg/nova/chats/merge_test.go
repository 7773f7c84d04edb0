package chats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeContinuation(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		addition string
		want     string
	}{
		{
			name:     "blank addition keeps base",
			base:     "The cat sat.",
			addition: "   ",
			want:     "The cat sat.",
		},
		{
			name:     "empty base takes addition",
			base:     "",
			addition: "  Fresh start.  ",
			want:     "Fresh start.",
		},
		{
			name:     "plain append with space",
			base:     "The cat sat on the mat.",
			addition: "Then it purred.",
			want:     "The cat sat on the mat. Then it purred.",
		},
		{
			name:     "no separator after trailing newline",
			base:     "Line one.\n",
			addition: "Line two.",
			want:     "Line one.\nLine two.",
		},
		{
			name:     "addition contained in base is dropped",
			base:     "She walked to the harbor and waited.",
			addition: "walked to the harbor",
			want:     "She walked to the harbor and waited.",
		},
		{
			name:     "containment check ignores case",
			base:     "She walked to the Harbor and waited.",
			addition: "WALKED TO THE HARBOR",
			want:     "She walked to the Harbor and waited.",
		},
		{
			name:     "overlapping restart trimmed",
			base:     "The cat sat on the",
			addition: "the mat and purred.",
			want:     "The cat sat on the mat and purred.",
		},
		{
			name:     "overlap fully consumed keeps base",
			base:     "Enough said",
			addition: "said",
			want:     "Enough said",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeContinuation(tt.base, tt.addition))
		})
	}
}
