//go:build linux

package cgroup

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestName_FormatsMillisAndNonce(t *testing.T) {
	assert.Equal(t, "oj-cg-1700000000000-7", name(1700000000000, 7))
}

func TestName_DistinctNoncesWithinSameMillisecond(t *testing.T) {
	a := name(1700000000000, 1)
	b := name(1700000000000, 2)
	assert.NotEqual(t, a, b)
}

func TestDirPath_JoinsUnderDelegateParent(t *testing.T) {
	p := dirPath(name(1700000000000, 3))
	assert.True(t, strings.HasPrefix(p, cgParent+"/"))
	assert.Equal(t, cgParent+"/oj-cg-1700000000000-3", p)
}

func TestName_OnlyDigitsAndHyphens(t *testing.T) {
	// dirPath is a plain filepath.Join with no sanitization of its own;
	// it relies on name() never producing "/" or "..". Pin that shape
	// here so a future change to name()'s format can't silently open a
	// path-traversal hole in dirPath.
	n := name(1700000000000, 42)
	assert.False(t, strings.ContainsAny(n, "/\\"))
	assert.True(t, strings.HasPrefix(n, "oj-cg-"))
	assert.Empty(t, strings.Trim(strings.TrimPrefix(n, "oj-cg-"), "0123456789-"))
}
