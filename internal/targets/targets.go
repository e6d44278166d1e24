// Package targets reads the line-delimited list of crawl targets.
//
// Each non-blank line is one target. Lines starting with '#' are comments.
// A target's Index is its zero-based line number, so blank and comment lines
// still occupy an ordinal and resume cursors stay aligned with the file.
package targets

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// DataSuffix is appended to a target to form its structured-data location.
const DataSuffix = "/data.json"

const maxLineSize = 1 << 20

// Target is one input location.
type Target struct {
	Index int
	URL   string
}

// DataURL returns the location of the target's structured-data resource.
func (t Target) DataURL() string {
	return t.URL + DataSuffix
}

// List is an ordered set of targets.
type List struct {
	Targets []Target
	// Lines is the number of lines read, including blanks and comments.
	Lines int
}

// Read parses targets from r.
func Read(r io.Reader) (*List, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	list := &List{}
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		index := list.Lines
		list.Lines++

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		list.Targets = append(list.Targets, Target{Index: index, URL: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("targets: read line %d: %w", list.Lines+1, err)
	}
	return list, nil
}

// ReadFile parses targets from the file at path.
func ReadFile(path string) (*List, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("targets: %w", err)
	}
	defer f.Close()

	return Read(f)
}
