package ics

import (
	"bufio"
	"io"
	"strings"
)

const maxLineBytes = 1 << 20

// Unfold reads a calendar document and returns its logical content lines.
// A physical line starting with a space or tab continues the previous one
// with that first character removed. CR and a leading UTF-8 BOM are dropped.
func Unfold(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		lines []string
		cur   strings.Builder
		open  bool
		first = true
	)
	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		if first {
			line = strings.TrimPrefix(line, "\uFEFF")
			first = false
		}
		if open && line != "" && (line[0] == ' ' || line[0] == '\t') {
			cur.WriteString(line[1:])
			continue
		}
		if open {
			lines = append(lines, cur.String())
			cur.Reset()
		}
		cur.WriteString(line)
		open = true
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if open {
		lines = append(lines, cur.String())
	}
	return lines, nil
}
