package registry

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Fixed column layout of a registry export.
const (
	colName = iota
	colTaxID
	colCredentialNumber
	colStatus
	colFormationCode // present in exports, not stored
	colFormation
	colCity
	colState
	colRegistrationDate

	columnCount
)

// SkipReason explains why the parser discarded a row.
type SkipReason string

const (
	SkipShortRow     SkipReason = "short_row"
	SkipMissingTaxID SkipReason = "missing_tax_id"
	SkipMissingField SkipReason = "missing_field"
	SkipMalformed    SkipReason = "malformed"
)

// ParseStats describes one parse.
type ParseStats struct {
	// Rows counts data rows after the header, blank lines excluded.
	Rows int
	// Bytes counts source bytes consumed.
	Bytes int64
	// Skipped counts discarded rows per reason.
	Skipped map[SkipReason]int
}

// SkippedTotal returns the number of discarded rows.
func (s ParseStats) SkippedTotal() int {
	total := 0
	for _, n := range s.Skipped {
		total += n
	}
	return total
}

// Parser decodes registry exports into Candidates.
type Parser struct {
	// Now supplies the reference year for two-digit years. Defaults to time.Now.
	Now func() time.Time
}

// Parse decodes r with a default Parser.
func Parse(r io.Reader) ([]Candidate, ParseStats, error) {
	return Parser{}.Parse(r)
}

// maxLineSize bounds a single source line.
const maxLineSize = 1 << 20

// Parse reads every row of r and returns the usable ones in input order.
//
// Each source line is decoded on its own, so an unbalanced quote only
// affects the line it appears on and quoted fields cannot span lines. The
// first non-blank row is the header and is discarded. Rows with fewer than
// nine columns, an empty tax ID after normalization, or an empty name,
// formation, city or state are dropped and counted in ParseStats. A line the
// CSV decoder rejects is dropped the same way. Only a failure of r itself
// returns an error.
func (p Parser) Parse(r io.Reader) ([]Candidate, ParseStats, error) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	refYear := now().Year()

	counter := NewCountingReader(NewCleanReader(r))
	scanner := bufio.NewScanner(counter)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	stats := ParseStats{Skipped: make(map[SkipReason]int)}
	var candidates []Candidate
	headerSeen := false
	line := 0

	for scanner.Scan() {
		line++
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}

		fields, err := decodeLine(text)
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				stats.Bytes = counter.BytesRead
				return nil, stats, fmt.Errorf("read file: %w", err)
			}
			if headerSeen {
				stats.Rows++
				stats.Skipped[SkipMalformed]++
			}
			headerSeen = true
			continue
		}

		if isBlankRow(fields) {
			continue
		}
		if !headerSeen {
			headerSeen = true
			continue
		}
		stats.Rows++

		c, reason, ok := decodeRow(fields, line, refYear)
		if !ok {
			stats.Skipped[reason]++
			continue
		}
		candidates = append(candidates, c)
	}
	stats.Bytes = counter.BytesRead
	if err := scanner.Err(); err != nil {
		return nil, stats, fmt.Errorf("read file: %w", err)
	}

	return candidates, stats, nil
}

// decodeLine splits one source line into fields. Bare and unbalanced quotes
// are kept literally.
func decodeLine(text string) ([]string, error) {
	cr := csv.NewReader(strings.NewReader(text))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	fields, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	return fields, err
}

// decodeRow maps one record onto the fixed layout.
func decodeRow(fields []string, line, refYear int) (Candidate, SkipReason, bool) {
	if len(fields) < columnCount {
		return Candidate{}, SkipShortRow, false
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	taxID := NormalizeTaxID(fields[colTaxID])
	if taxID == "" {
		return Candidate{}, SkipMissingTaxID, false
	}
	if fields[colName] == "" || fields[colFormation] == "" || fields[colCity] == "" || fields[colState] == "" {
		return Candidate{}, SkipMissingField, false
	}

	return Candidate{
		Line:             line,
		FullName:         fields[colName],
		TaxID:            taxID,
		CredentialNumber: fields[colCredentialNumber],
		Status:           fields[colStatus],
		Formation:        fields[colFormation],
		City:             fields[colCity],
		State:            fields[colState],
		RegistrationDate: ParseDate(fields[colRegistrationDate], refYear),
	}, "", true
}

// NormalizeTaxID strips every non-digit character.
func NormalizeTaxID(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func isBlankRow(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
