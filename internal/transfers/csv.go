// Package transfers reads the batch input file and turns rows into
// base-unit transfers.
package transfers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ligun0805/safe-batch/internal/safecore"
)

// Row is one raw input line, trimmed but not validated.
type Row struct {
	Line   int
	Token  string
	To     string
	Amount string
}

var columnAliases = map[string]string{
	"token":     "token",
	"to":        "to",
	"recipient": "to",
	"amount":    "amount",
	"value":     "amount",
}

// ReadFile parses a TOKEN,TO,AMOUNT file.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Read parses CSV with a header row naming TOKEN, TO and AMOUNT in any order.
// Comma or semicolon separated; blank lines are skipped.
func Read(r io.Reader) ([]Row, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comma = detectDelimiter(data)

	var (
		rows   []Row
		index  map[string]int
		errs   []error
		lineNo int
	)
	for {
		rec, e := reader.Read()
		if e != nil {
			if errors.Is(e, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: %w", safecore.ErrInputParse, e)
		}
		lineNo, _ = reader.FieldPos(0)
		if skipRow(rec) {
			continue
		}
		if index == nil {
			if index, err = headerIndex(rec); err != nil {
				return nil, fmt.Errorf("%w: line %d: %w", safecore.ErrInputParse, lineNo, err)
			}
			continue
		}
		field := func(name string) string {
			i := index[name]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		row := Row{Line: lineNo, Token: field("token"), To: field("to"), Amount: field("amount")}
		if row.Token == "" || row.To == "" || row.Amount == "" {
			errs = append(errs, fmt.Errorf("line %d: expected TOKEN,TO,AMOUNT, got %d fields", lineNo, len(rec)))
			continue
		}
		rows = append(rows, row)
	}
	if index == nil {
		return nil, fmt.Errorf("%w: empty input, expected a TOKEN,TO,AMOUNT header", safecore.ErrInputParse)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", safecore.ErrInputParse, errors.Join(errs...))
	}
	return rows, nil
}

func headerIndex(rec []string) (map[string]int, error) {
	idx := map[string]int{}
	for i, h := range rec {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if name, ok := columnAliases[h]; ok {
			if _, dup := idx[name]; dup {
				return nil, fmt.Errorf("duplicate column %q", h)
			}
			idx[name] = i
		}
	}
	var missing []string
	for _, name := range []string{"token", "to", "amount"} {
		if _, ok := idx[name]; !ok {
			missing = append(missing, strings.ToUpper(name))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("header %q is missing %s", strings.Join(rec, ","), strings.Join(missing, ", "))
	}
	return idx, nil
}

func detectDelimiter(data []byte) rune {
	lines := strings.Split(string(data), "\n")
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if strings.Contains(l, ";") && !strings.Contains(l, ",") {
			return ';'
		}
		break
	}
	return ','
}

func skipRow(row []string) bool {
	if len(row) == 0 {
		return true
	}
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return strings.HasPrefix(strings.TrimSpace(row[0]), "#")
		}
	}
	return true
}

// Write emits transfers in the input format so a failed subset can be re-run.
func Write(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"TOKEN", "TO", "AMOUNT"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Token, r.To, r.Amount}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
