package judge

import (
	"bufio"
	"bytes"
	"io"
)

// compareOutputs is the expansion's lightweight stand-in for the
// explicitly out-of-scope full output comparator: a whitespace-
// normalizing byte comparison, where trailing whitespace on each line and
// trailing blank lines are ignored but internal tokens must match
// exactly.
func compareOutputs(got, want io.Reader) (bool, error) {
	gl, err := normalizedLines(got)
	if err != nil {
		return false, err
	}
	wl, err := normalizedLines(want)
	if err != nil {
		return false, err
	}
	if len(gl) != len(wl) {
		return false, nil
	}
	for i := range gl {
		if !bytes.Equal(gl[i], wl[i]) {
			return false, nil
		}
	}
	return true, nil
}

func normalizedLines(r io.Reader) ([][]byte, error) {
	var lines [][]byte
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimRight(sc.Bytes(), " \t\r")
		lines = append(lines, append([]byte(nil), line...))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	for len(lines) > 0 && len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}
	return lines, nil
}
