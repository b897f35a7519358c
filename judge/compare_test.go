package judge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareOutputs(t *testing.T) {
	cases := []struct {
		name string
		got  string
		want string
		eq   bool
	}{
		{"exact match", "1 2 3\n", "1 2 3\n", true},
		{"trailing spaces ignored", "1 2 3   \n", "1 2 3\n", true},
		{"trailing blank lines ignored", "1 2 3\n\n\n", "1 2 3\n", true},
		{"missing trailing newline ok", "1 2 3", "1 2 3\n", true},
		{"internal whitespace differs", "1  2 3\n", "1 2 3\n", false},
		{"different token", "1 2 4\n", "1 2 3\n", false},
		{"extra line", "1 2 3\n4 5 6\n", "1 2 3\n", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eq, err := compareOutputs(strings.NewReader(tc.got), strings.NewReader(tc.want))
			require.NoError(t, err)
			assert.Equal(t, tc.eq, eq)
		})
	}
}
