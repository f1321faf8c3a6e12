package leads

import "strings"

// Lead is the canonical record. The json tags double as the column names (see newDBStorage)
type Lead struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	Source string `json:"source"`
	Status string `json:"status"`
	Date   string `json:"date"`
	Notes  string `json:"notes"`
}

// Input is what Create & Import accept: a lead before it has an id. Notes always start out empty
type Input struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	Source string `json:"source"`
	Status string `json:"status"`
	Date   string `json:"date"`
}

// Patch is a partial update; nil fields are left untouched. There is no ID on purpose: an id never changes
type Patch struct {
	Name   *string `json:"name,omitempty"`
	Email  *string `json:"email,omitempty"`
	Phone  *string `json:"phone,omitempty"`
	Source *string `json:"source,omitempty"`
	Status *string `json:"status,omitempty"`
	Date   *string `json:"date,omitempty"`
	Notes  *string `json:"notes,omitempty"`
}

// Filter narrows GetAll. The zero value matches everything
type Filter struct {
	Status string // case-insensitive equality; "all" matches everything
	Source string // case-insensitive equality; "all" matches everything
	Email  string // case-insensitive substring
	Phone  string // substring
	Date   string // exact YYYY-MM-DD
}

func newLead(id int64, in Input) *Lead {
	return &Lead{
		ID:     id,
		Name:   in.Name,
		Email:  in.Email,
		Phone:  in.Phone,
		Source: in.Source,
		Status: in.Status,
		Date:   in.Date,
		Notes:  "",
	}
}

// apply merges the patch into l
func (p Patch) apply(l *Lead) {
	if p.Name != nil {
		l.Name = *p.Name
	}
	if p.Email != nil {
		l.Email = *p.Email
	}
	if p.Phone != nil {
		l.Phone = *p.Phone
	}
	if p.Source != nil {
		l.Source = *p.Source
	}
	if p.Status != nil {
		l.Status = *p.Status
	}
	if p.Date != nil {
		l.Date = *p.Date
	}
	if p.Notes != nil {
		l.Notes = *p.Notes
	}
}

// IsEmpty reports whether the patch would change nothing
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Email == nil && p.Phone == nil && p.Source == nil &&
		p.Status == nil && p.Date == nil && p.Notes == nil
}

// IsZero reports whether f matches every lead
func (f Filter) IsZero() bool {
	return !isSet(f.Status) && !isSet(f.Source) && f.Email == "" && f.Phone == "" && f.Date == ""
}

// Match reports whether l passes every criterion set on f
func (f Filter) Match(l *Lead) bool {
	if isSet(f.Status) && !strings.EqualFold(l.Status, f.Status) {
		return false
	}
	if isSet(f.Source) && !strings.EqualFold(l.Source, f.Source) {
		return false
	}
	if f.Email != "" && !strings.Contains(strings.ToLower(l.Email), strings.ToLower(f.Email)) {
		return false
	}
	if f.Phone != "" && !strings.Contains(l.Phone, f.Phone) {
		return false
	}
	if f.Date != "" && l.Date != f.Date {
		return false
	}
	return true
}

// isSet treats "" and "all" as "no filter" like the dropdowns in the UI do
func isSet(v string) bool {
	return v != "" && !strings.EqualFold(v, "all")
}
