package patient

import (
	"strings"
	"time"
)

// Medication is an active prescription from the EHR
type Medication struct {
	Name           string `json:"name"`
	Status         string `json:"status"`
	PrescribedDate string `json:"prescribed_date,omitempty"`
	Prescriber     string `json:"prescriber"`
}

// Condition is a recorded diagnosis from the EHR
type Condition struct {
	Name         string `json:"name"`
	Status       string `json:"status"`
	RecordedDate string `json:"recorded_date,omitempty"`
}

// Contact holds patient contact details
type Contact struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Profile is the patient's medical profile as served by the backend.
// LastUpdated is the server's timestamp, not the client fetch time.
type Profile struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	BirthDate   string       `json:"birth_date,omitempty"` // YYYY-MM-DD
	Age         *int         `json:"age,omitempty"`
	Gender      string       `json:"gender"`
	Contact     Contact      `json:"contact"`
	Medications []Medication `json:"active_medications"`
	Conditions  []Condition  `json:"medical_conditions"`
	LastUpdated string       `json:"last_updated"`
}

// Sex is the normalized form of the free-text gender field
type Sex string

const (
	SexMale   Sex = "male"
	SexFemale Sex = "female"
	SexOther  Sex = "other"
)

// Sex normalizes Gender; anything unrecognized or empty is SexOther.
func (p *Profile) Sex() Sex {
	switch strings.ToLower(strings.TrimSpace(p.Gender)) {
	case "male", "m", "man":
		return SexMale
	case "female", "f", "woman":
		return SexFemale
	default:
		return SexOther
	}
}

// AgeAt returns the server-reported age, or derives it from BirthDate.
func (p *Profile) AgeAt(now time.Time) (int, bool) {
	if p.Age != nil {
		return *p.Age, true
	}
	if p.BirthDate == "" {
		return 0, false
	}
	born, err := time.Parse("2006-01-02", p.BirthDate)
	if err != nil {
		return 0, false
	}
	years := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		years--
	}
	if years < 0 {
		return 0, false
	}
	return years, true
}

// Context is the medication and condition names active when a message is
// sent. It is captured by value so later profile changes leave history alone.
type Context struct {
	Medications []string `json:"medications"`
	Conditions  []string `json:"conditions"`
}

// Clone returns a deep copy.
func (c Context) Clone() Context {
	return Context{
		Medications: append(make([]string, 0, len(c.Medications)), c.Medications...),
		Conditions:  append(make([]string, 0, len(c.Conditions)), c.Conditions...),
	}
}

// EmptyContext has two empty, non-nil lists.
func EmptyContext() Context {
	return Context{Medications: []string{}, Conditions: []string{}}
}
