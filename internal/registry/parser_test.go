package registry

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

const header = "Nome,CPF,Registro,Situacao,Cod,Formacao,Cidade,UF,Data\n"

func row(name, cpf string) string {
	return name + "," + cpf + ",CRP-1,Regular,01,Psicologia,Recife,PE,10/05/2019\n"
}

// =============================================================================
// Layout and skipping
// =============================================================================

func TestParse_Basic(t *testing.T) {
	input := header + row("Ana Souza", "123.456.789-01") + row("Bruno Lima", "98765432100")

	cands, stats, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("len(candidates) = %d, want 2", len(cands))
	}

	c := cands[0]
	if c.FullName != "Ana Souza" {
		t.Errorf("FullName = %q, want %q", c.FullName, "Ana Souza")
	}
	if c.TaxID != "12345678901" {
		t.Errorf("TaxID = %q, want %q", c.TaxID, "12345678901")
	}
	if c.CredentialNumber != "CRP-1" || c.Status != "Regular" {
		t.Errorf("credential/status = %q/%q", c.CredentialNumber, c.Status)
	}
	if c.Formation != "Psicologia" || c.City != "Recife" || c.State != "PE" {
		t.Errorf("formation/city/state = %q/%q/%q", c.Formation, c.City, c.State)
	}
	if !c.RegistrationDate.Valid || !c.RegistrationDate.Time.Equal(time.Date(2019, 5, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("RegistrationDate = %+v, want 2019-05-10", c.RegistrationDate)
	}
	if c.Line != 2 {
		t.Errorf("Line = %d, want 2", c.Line)
	}
	if stats.Rows != 2 || stats.SkippedTotal() != 0 {
		t.Errorf("stats = %+v, want 2 rows and no skips", stats)
	}
	if stats.Bytes != int64(len(input)) {
		t.Errorf("stats.Bytes = %d, want %d", stats.Bytes, len(input))
	}
}

func TestParse_ShortRowDoesNotAbort(t *testing.T) {
	var b strings.Builder
	b.WriteString(header)
	for i := 1; i <= 10; i++ {
		if i == 5 {
			b.WriteString("Short,555,CRP,Regular,01,Psicologia\n")
			continue
		}
		b.WriteString(row("Name", strings.Repeat(string(rune('0'+i%10)), 11)))
	}

	cands, stats, err := Parse(strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cands) != 9 {
		t.Errorf("len(candidates) = %d, want 9", len(cands))
	}
	if stats.Skipped[SkipShortRow] != 1 {
		t.Errorf("Skipped[short_row] = %d, want 1", stats.Skipped[SkipShortRow])
	}
	if stats.Rows != 10 {
		t.Errorf("Rows = %d, want 10", stats.Rows)
	}
}

func TestParse_UnclosedQuoteStaysOnItsLine(t *testing.T) {
	var b strings.Builder
	b.WriteString(header)
	for i := 1; i <= 10; i++ {
		name := "Name"
		if i == 2 {
			name = `"Ana "Nena`
		}
		b.WriteString(row(name, strings.Repeat(string(rune('0'+i%10)), 11)))
	}

	cands, stats, err := Parse(strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cands) != 9 {
		t.Fatalf("len(candidates) = %d, want 9", len(cands))
	}
	if stats.Rows != 10 || stats.SkippedTotal() != 1 {
		t.Errorf("stats = %+v, want 10 rows and 1 skip", stats)
	}
	if cands[1].TaxID != "33333333333" || cands[1].Line != 4 {
		t.Errorf("row after the bad quote = %q at line %d, want 33333333333 at line 4", cands[1].TaxID, cands[1].Line)
	}
}

func TestParse_BareQuoteInsideField(t *testing.T) {
	input := header + row(`Maria "Nena" Silva`, "123") + row("Bia", "456")

	cands, stats, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cands) != 2 || stats.SkippedTotal() != 0 {
		t.Fatalf("got %d candidates, %d skipped; want 2 and 0", len(cands), stats.SkippedTotal())
	}
	if cands[0].FullName != `Maria "Nena" Silva` {
		t.Errorf("FullName = %q, want %q", cands[0].FullName, `Maria "Nena" Silva`)
	}
}

func TestParse_QuotedNewlineDoesNotJoinLines(t *testing.T) {
	input := header + "\"Ana\n" + row("Bia", "456")

	cands, stats, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cands) != 1 || cands[0].FullName != "Bia" {
		t.Fatalf("candidates = %+v, want only Bia", cands)
	}
	if stats.Skipped[SkipShortRow] != 1 {
		t.Errorf("Skipped[short_row] = %d, want 1", stats.Skipped[SkipShortRow])
	}
}

func TestParse_SkipReasons(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		reason SkipReason
	}{
		{"no digits in tax id", "Ana,abc,C,Regular,01,Psicologia,Recife,PE,01/01/2020\n", SkipMissingTaxID},
		{"empty tax id", "Ana,,C,Regular,01,Psicologia,Recife,PE,01/01/2020\n", SkipMissingTaxID},
		{"empty name", ",123,C,Regular,01,Psicologia,Recife,PE,01/01/2020\n", SkipMissingField},
		{"empty formation", "Ana,123,C,Regular,01,,Recife,PE,01/01/2020\n", SkipMissingField},
		{"empty city", "Ana,123,C,Regular,01,Psicologia, ,PE,01/01/2020\n", SkipMissingField},
		{"empty state", "Ana,123,C,Regular,01,Psicologia,Recife,,01/01/2020\n", SkipMissingField},
		{"eight columns", "Ana,123,C,Regular,01,Psicologia,Recife,PE\n", SkipShortRow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cands, stats, err := Parse(strings.NewReader(header + tt.line))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if len(cands) != 0 {
				t.Errorf("len(candidates) = %d, want 0", len(cands))
			}
			if stats.Skipped[tt.reason] != 1 {
				t.Errorf("Skipped = %v, want one %s", stats.Skipped, tt.reason)
			}
		})
	}
}

func TestParse_EmptyCredentialAndStatusAccepted(t *testing.T) {
	input := header + "Ana,123,,,,Psicologia,Recife,PE,\n"
	cands, _, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("len(candidates) = %d, want 1", len(cands))
	}
	if cands[0].RegistrationDate.Valid {
		t.Error("empty date should be invalid")
	}
}

func TestParse_ExtraColumnsIgnored(t *testing.T) {
	input := header + "Ana,123,C,Regular,01,Psicologia,Recife,PE,01/01/2020,extra,more\n"
	cands, _, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cands) != 1 || cands[0].State != "PE" {
		t.Errorf("candidates = %+v", cands)
	}
}

// =============================================================================
// Input hygiene
// =============================================================================

func TestParse_BlankLinesAndHeader(t *testing.T) {
	input := "\n\n   \n" + header + "\n" + row("Ana", "1") + "\n\n" + row("Bia", "2") + "\n"

	cands, stats, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("len(candidates) = %d, want 2", len(cands))
	}
	if cands[0].FullName != "Ana" || cands[1].FullName != "Bia" {
		t.Errorf("names = %q, %q", cands[0].FullName, cands[1].FullName)
	}
	if stats.Rows != 2 {
		t.Errorf("Rows = %d, want 2", stats.Rows)
	}
	if cands[0].Line != 6 || cands[1].Line != 9 {
		t.Errorf("lines = %d, %d; want 6, 9", cands[0].Line, cands[1].Line)
	}
}

func TestParse_HeaderOnly(t *testing.T) {
	cands, stats, err := Parse(strings.NewReader(header))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cands) != 0 || stats.Rows != 0 {
		t.Errorf("got %d candidates, %d rows; want none", len(cands), stats.Rows)
	}
}

func TestParse_EmptyInput(t *testing.T) {
	cands, _, err := Parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cands) != 0 {
		t.Errorf("len(candidates) = %d, want 0", len(cands))
	}
}

func TestParse_CRLFAndBOM(t *testing.T) {
	input := "\xEF\xBB\xBF" + strings.ReplaceAll(header+row("Ana", "123"), "\n", "\r\n")

	cands, _, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("len(candidates) = %d, want 1", len(cands))
	}
	if !cands[0].RegistrationDate.Valid {
		t.Error("date should parse despite CRLF line endings")
	}
}

func TestParse_QuotedFieldWithComma(t *testing.T) {
	input := header + `"Souza, Ana",123,C,Regular,01,Psicologia,"Recife",PE,01/01/2020` + "\n"

	cands, _, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cands) != 1 {
		t.Fatalf("len(candidates) = %d, want 1", len(cands))
	}
	if cands[0].FullName != "Souza, Ana" {
		t.Errorf("FullName = %q, want %q", cands[0].FullName, "Souza, Ana")
	}
}

func TestParse_InvalidUTF8Sanitized(t *testing.T) {
	input := header + "Jo\xE3o,123,C,Regular,01,Psicologia,Recife,PE,01/01/2020\n"

	cands, _, err := Parse(strings.NewReader(input))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cands) != 1 || cands[0].FullName != "Jo?o" {
		t.Errorf("candidates = %+v, want FullName Jo?o", cands)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestParse_ReaderErrorIsReturned(t *testing.T) {
	_, _, err := Parse(failingReader{})
	if err == nil {
		t.Fatal("Parse() expected error from failing reader")
	}
	if !strings.Contains(err.Error(), "read file") {
		t.Errorf("error = %v, want read file prefix", err)
	}
}

func TestNormalizeTaxID(t *testing.T) {
	tests := []struct{ in, want string }{
		{"123.456.789-01", "12345678901"},
		{" 123 456 ", "123456"},
		{"abc", ""},
		{"", ""},
		{"１２３", ""},
	}
	for _, tt := range tests {
		if got := NormalizeTaxID(tt.in); got != tt.want {
			t.Errorf("NormalizeTaxID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// =============================================================================
// Dates
// =============================================================================

func TestParseDate(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
		want  time.Time
	}{
		{"10/05/2019", true, time.Date(2019, 5, 10, 0, 0, 0, 0, time.UTC)},
		{"1/2/2003", true, time.Date(2003, 2, 1, 0, 0, 0, 0, time.UTC)},
		{" 29/02/2024 ", true, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)},
		{"05/03/21", true, time.Date(2021, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"05/03/99", true, time.Date(1999, 3, 5, 0, 0, 0, 0, time.UTC)},
		{"31/02/2020", false, time.Time{}},
		{"29/02/2023", false, time.Time{}},
		{"00/01/2020", false, time.Time{}},
		{"10/13/2020", false, time.Time{}},
		{"", false, time.Time{}},
		{"10/05", false, time.Time{}},
		{"10/05/2019/1", false, time.Time{}},
		{"aa/05/2019", false, time.Time{}},
		{"10//2019", false, time.Time{}},
		{"10/05/219", false, time.Time{}},
		{"2019-05-10", false, time.Time{}},
		{"-1/05/2019", false, time.Time{}},
	}

	for _, tt := range tests {
		got := ParseDate(tt.in, 2024)
		if got.Valid != tt.valid {
			t.Errorf("ParseDate(%q).Valid = %v, want %v", tt.in, got.Valid, tt.valid)
			continue
		}
		if tt.valid && !got.Time.Equal(tt.want) {
			t.Errorf("ParseDate(%q) = %v, want %v", tt.in, got.Time, tt.want)
		}
	}
}

func TestProcessingDate(t *testing.T) {
	loc := time.FixedZone("BRT", -3*60*60)
	now := time.Date(2024, 7, 15, 22, 30, 0, 0, loc) // 01:30 UTC on the 16th

	got := processingDate(now)
	want := time.Date(2024, 7, 16, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("processingDate() = %v, want %v", got, want)
	}
}

// =============================================================================
// Streaming readers
// =============================================================================

func TestCleanReader(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain ascii", "a,b,c\n", "a,b,c\n"},
		{"bom stripped", "\xEF\xBB\xBFa,b", "a,b"},
		{"only bom", "\xEF\xBB\xBF", ""},
		{"valid multibyte kept", "São Paulo", "São Paulo"},
		{"invalid byte replaced", "a\xFFb", "a?b"},
		{"truncated sequence replaced", "ab\xC3", "ab?"},
		{"inner bom kept", "a\xEF\xBB\xBFb", "a\uFEFFb"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(NewCleanReader(strings.NewReader(tt.in)))
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCleanReader_TinyBuffer(t *testing.T) {
	r := NewCleanReader(strings.NewReader("ção"))
	var out []byte
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
	}
	if string(out) != "ção" {
		t.Errorf("got %q, want %q", out, "ção")
	}
}

func TestCountingReader(t *testing.T) {
	r := NewCountingReader(strings.NewReader("hello world"))
	if _, err := io.ReadAll(r); err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if r.BytesRead != 11 {
		t.Errorf("BytesRead = %d, want 11", r.BytesRead)
	}
}
