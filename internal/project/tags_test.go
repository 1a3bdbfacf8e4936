package project

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTags(t *testing.T) {
	cases := []struct {
		name string
		body string
		want []string
	}{
		{"none", "shipped the new dashboard", nil},
		{"basic", "shipped #design and #backend work", []string{"design", "backend"}},
		{"dedup and lowercase", "#Design then #design again", []string{"design"}},
		{"ignores bare hash", "issue # 42", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractTags(tc.body))
		})
	}
}
