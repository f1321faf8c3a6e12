package leads

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Canonical field names
const (
	FieldName   = "name"
	FieldEmail  = "email"
	FieldPhone  = "phone"
	FieldSource = "source"
	FieldStatus = "status"
	FieldDate   = "date"
)

const (
	DefaultSource = "Other"
	DefaultStatus = "New"
)

// Cell is one column of a raw row
type Cell struct {
	Key   string
	Value string
}

// Row is a raw record in column order. Order matters: when two columns match the same field the first one wins
type Row []Cell

// Get returns the value of the first cell whose key is exactly key
func (r Row) Get(key string) (string, bool) {
	for _, c := range r {
		if c.Key == key {
			return c.Value, true
		}
	}
	return "", false
}

// blank reports whether every value in the row is empty after trimming
func (r Row) blank() bool {
	for _, c := range r {
		if strings.TrimSpace(c.Value) != "" {
			return false
		}
	}
	return true
}

// defaultAliases are the header variants accepted for each field, lower-case & in order of preference
var defaultAliases = map[string][]string{
	FieldName:   {"name", "full name", "contact name", "contact", "client", "client name"},
	FieldEmail:  {"email", "email address", "mail", "e-mail"},
	FieldPhone:  {"phone", "phone number", "tel", "telephone", "mobile", "cell"},
	FieldSource: {"source", "lead source", "channel", "origin"},
	FieldStatus: {"status", "lead status", "state"},
	FieldDate:   {"date", "lead date", "created date", "created at", "date created"},
}

// Normalizer maps rows with arbitrary headers onto Input. The zero value is not usable; see NewNormalizer
type Normalizer struct {
	aliases map[string]map[string]struct{}
	now     func() time.Time
}

type NormalizerOption func(*Normalizer)

// WithClock sets where the fallback date comes from
func WithClock(now func() time.Time) NormalizerOption {
	return func(n *Normalizer) {
		n.now = now
	}
}

// WithAliases accepts more header variants for field. Unknown fields are ignored
func WithAliases(field string, aliases ...string) NormalizerOption {
	return func(n *Normalizer) {
		set, ok := n.aliases[field]
		if !ok {
			return
		}
		for _, a := range aliases {
			set[normalizeKey(a)] = struct{}{}
		}
	}
}

func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		aliases: make(map[string]map[string]struct{}, len(defaultAliases)),
		now:     time.Now,
	}
	for field, aliases := range defaultAliases {
		set := make(map[string]struct{}, len(aliases))
		for _, a := range aliases {
			set[a] = struct{}{}
		}
		n.aliases[field] = set
	}

	for _, opt := range opts {
		opt(n)
	}
	return n
}

/*
	Normalize builds an Input out of row. For each field the first column (in row order) whose header
	is one of the field's aliases is used, ignoring case. Fields with no matching column, or whose
	matching column is blank, get their fallback: "" for name, email & phone, DefaultSource,
	DefaultStatus and today's date (UTC)
*/
func (n *Normalizer) Normalize(row Row) Input {
	return Input{
		Name:   n.lookup(row, FieldName, ""),
		Email:  n.lookup(row, FieldEmail, ""),
		Phone:  n.lookup(row, FieldPhone, ""),
		Source: n.lookup(row, FieldSource, DefaultSource),
		Status: n.lookup(row, FieldStatus, DefaultStatus),
		Date:   n.lookup(row, FieldDate, n.today()),
	}
}

// NormalizeAll normalizes rows in order, dropping the blank ones
func (n *Normalizer) NormalizeAll(rows []Row) []Input {
	ins := make([]Input, 0, len(rows))
	for _, row := range rows {
		if row.blank() {
			continue
		}
		ins = append(ins, n.Normalize(row))
	}
	return ins
}

func (n *Normalizer) lookup(row Row, field, fallback string) string {
	aliases := n.aliases[field]
	for _, c := range row {
		if _, ok := aliases[normalizeKey(c.Key)]; !ok {
			continue
		}

		// first match wins, even if it's blank. Values are trimmed so whitespace-only is blank too
		if v := strings.TrimSpace(c.Value); v != "" {
			return v
		}
		return fallback
	}
	return fallback
}

func (n *Normalizer) today() string {
	return n.now().UTC().Format(dateLayout)
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(k, "\ufeff")))
}
