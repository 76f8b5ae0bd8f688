package aberration

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode"
)

// Parse reads an aberration coefficient table. The first line is a header
// and is discarded. Each following line holds, in order, integer m, integer
// n, float magnitude, and float angle in degrees, separated by commas and/or
// whitespace. A trimmed line of three characters or fewer terminates the
// table. Parse returns the terms in file order along with the total number
// of lines consumed, including the header.
func Parse(r io.Reader) ([]Aberration, int, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, 0, fmt.Errorf("aberration: reading header: %w", err)
		}
		return nil, 0, fmt.Errorf("aberration: missing header line")
	}

	var terms []Aberration
	lineNum := 1
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if len(line) <= 3 {
			break
		}
		lineNum++

		fields := strings.FieldsFunc(line, func(r rune) bool {
			return r == ',' || unicode.IsSpace(r)
		})
		if len(fields) < 4 {
			return nil, lineNum, &FormatError{Line: lineNum, Text: line}
		}

		m, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, lineNum, &FormatError{Line: lineNum, Text: line}
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, lineNum, &FormatError{Line: lineNum, Text: line}
		}
		mag, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, lineNum, &FormatError{Line: lineNum, Text: line}
		}
		angle, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, lineNum, &FormatError{Line: lineNum, Text: line}
		}

		terms = append(terms, Aberration{M: m, N: n, Mag: mag, Angle: angle})
	}
	if err := sc.Err(); err != nil {
		return nil, lineNum, fmt.Errorf("aberration: reading table: %w", err)
	}
	if len(terms) == 0 {
		return nil, lineNum, ErrNoAberrations
	}
	return terms, lineNum, nil
}

// ParseFile opens path and parses it with Parse.
func ParseFile(path string) ([]Aberration, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("aberration: %w", err)
	}
	defer f.Close()
	return Parse(f)
}
