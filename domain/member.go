package domain

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// birthDateLayout is the wire format for member birth dates.
const birthDateLayout = "2006-01-02"

// Member is a household member tasks can be assigned to.
type Member struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Avatar    string `json:"avatar,omitempty"`
	Color     string `json:"color,omitempty"`
	BirthDate string `json:"birthDate,omitempty"`
	CreatedAt int64  `json:"createdAt"`
}

func (m Member) EntityID() string { return m.ID }

func (m Member) WithEntityID(id string) Member {
	m.ID = id
	return m
}

var (
	ErrEmptyName        = errors.New("member name is required")
	ErrInvalidBirthDate = errors.New("member birth date must be YYYY-MM-DD")
)

func (m Member) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return ErrEmptyName
	}
	if m.BirthDate != "" {
		if _, err := time.Parse(birthDateLayout, m.BirthDate); err != nil {
			return ErrInvalidBirthDate
		}
	}
	return nil
}

// Age returns the member's age in whole years at the given moment. The
// second return is false when no birth date is recorded.
func (m Member) Age(now time.Time) (int, bool) {
	if m.BirthDate == "" {
		return 0, false
	}
	born, err := time.Parse(birthDateLayout, m.BirthDate)
	if err != nil {
		return 0, false
	}
	years := now.Year() - born.Year()
	if now.YearDay() < born.YearDay() {
		years--
	}
	if years < 0 {
		years = 0
	}
	return years, true
}

// SortMembers orders members oldest-first by birth date. Members without a
// birth date come last; ties break on name.
func SortMembers(members []Member) {
	sort.SliceStable(members, func(i, j int) bool {
		a, b := members[i], members[j]
		switch {
		case a.BirthDate == "" && b.BirthDate == "":
			return a.Name < b.Name
		case a.BirthDate == "":
			return false
		case b.BirthDate == "":
			return true
		case a.BirthDate != b.BirthDate:
			return a.BirthDate < b.BirthDate
		}
		return a.Name < b.Name
	})
}

// MemberPatch carries the optional fields of a member update.
type MemberPatch struct {
	Name      *string `json:"name,omitempty"`
	Avatar    *string `json:"avatar,omitempty"`
	Color     *string `json:"color,omitempty"`
	BirthDate *string `json:"birthDate,omitempty"`
}

func (p MemberPatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return ErrEmptyName
	}
	if p.BirthDate != nil && *p.BirthDate != "" {
		if _, err := time.Parse(birthDateLayout, *p.BirthDate); err != nil {
			return ErrInvalidBirthDate
		}
	}
	return nil
}

func (p MemberPatch) Apply(m Member) Member {
	if p.Name != nil {
		m.Name = *p.Name
	}
	if p.Avatar != nil {
		m.Avatar = *p.Avatar
	}
	if p.Color != nil {
		m.Color = *p.Color
	}
	if p.BirthDate != nil {
		m.BirthDate = *p.BirthDate
	}
	return m
}
