// Package roster checks chat accounts against the registration export and
// records who has verified.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	ColEmail = "Email Address"
	ColFirst = "First Name"
	ColLast  = "Last Name"
)

// Identity is matched exactly, case included, against the export.
type Identity struct {
	Email string `json:"email"`
	First string `json:"first_name"`
	Last  string `json:"last_name"`
}

type Roster struct {
	entries map[Identity]struct{}
}

func LoadFile(path string) (*Roster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("roster: %w", err)
	}
	defer f.Close()
	return LoadCSV(f)
}

// LoadCSV reads a registration sheet export. Only the email and name
// columns are kept.
func LoadCSV(r io.Reader) (*Roster, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("roster: empty export")
	}
	if err != nil {
		return nil, fmt.Errorf("roster: header: %w", err)
	}

	idx := map[string]int{}
	for i, col := range header {
		idx[strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))] = i
	}
	var missing []string
	for _, col := range []string{ColEmail, ColFirst, ColLast} {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("roster: missing columns %q", missing)
	}

	ro := &Roster{entries: map[Identity]struct{}{}}
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("roster: %w", err)
		}
		id := Identity{Email: field(row, idx[ColEmail]), First: field(row, idx[ColFirst]), Last: field(row, idx[ColLast])}
		if id.Email == "" {
			continue
		}
		ro.entries[id] = struct{}{}
	}
	return ro, nil
}

func field(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (r *Roster) IsRegistered(id Identity) bool {
	_, ok := r.entries[id]
	return ok
}

func (r *Roster) Len() int { return len(r.entries) }
