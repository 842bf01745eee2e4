// Package export writes submissions as CSV, XLSX or a Google Sheet.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/teslashibe/go-wastesnap/pkg/submission"
)

// DateLayout formats the Date column.
const DateLayout = "2006-01-02"

// Headers is the column order shared by every format.
var Headers = []string{"Name", "Address", "Gender", "Age", "Phone", "Email", "Photo URL", "Date"}

// FileName returns "waste-submissions-YYYY-MM-DD.<ext>".
func FileName(ext string, now time.Time) string {
	return fmt.Sprintf("waste-submissions-%s.%s", now.Format(DateLayout), ext)
}

// Row returns the cells of one submission in Headers order.
func Row(s submission.Submission) []string {
	date := ""
	if !s.CreatedAt.IsZero() {
		date = s.CreatedAt.Format(DateLayout)
	}
	return []string{
		s.Name,
		s.Address,
		s.Gender,
		strconv.Itoa(s.Age),
		s.Phone,
		s.Email,
		s.PhotoURL,
		date,
	}
}

// CSV writes a header row and one row per submission.
func CSV(w io.Writer, subs []submission.Submission) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Headers); err != nil {
		return fmt.Errorf("export: csv header: %w", err)
	}
	for _, s := range subs {
		if err := cw.Write(sanitize(Row(s))); err != nil {
			return fmt.Errorf("export: csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("export: csv flush: %w", err)
	}
	return nil
}

// sanitize prefixes cells that spreadsheets would evaluate as formulas.
func sanitize(cells []string) []string {
	for i, c := range cells {
		if c == "" {
			continue
		}
		switch c[0] {
		case '=', '@', '\t', '\r':
			cells[i] = "'" + c
		case '+', '-':
			// Phone numbers start with '+'; keep them when the rest is numeric.
			if !phoneLike(c) {
				cells[i] = "'" + c
			}
		}
	}
	return cells
}

func phoneLike(s string) bool {
	for _, r := range s[1:] {
		if (r < '0' || r > '9') && r != ' ' && r != '-' {
			return false
		}
	}
	return true
}
