package patient

import (
	"strings"

	apperrors "github.com/gmsas95/carecache/internal/errors"
)

const placeholderName = "Unknown Patient"

// normalize validates a fetched profile and drops duplicate medications and
// conditions. The input is not modified.
func normalize(p *Profile) (*Profile, error) {
	if p == nil {
		return nil, apperrors.ErrInvalidProfile
	}
	name := strings.TrimSpace(p.Name)
	if name == "" || name == placeholderName {
		return nil, apperrors.ErrInvalidProfile
	}

	out := *p
	if p.Age != nil {
		age := *p.Age
		out.Age = &age
	}
	out.Medications = dedupeMedications(p.Medications)
	out.Conditions = dedupeConditions(p.Conditions)
	return &out, nil
}

// dedupeMedications keeps the first of each name+prescriber pair.
func dedupeMedications(meds []Medication) []Medication {
	seen := make(map[string]struct{}, len(meds))
	out := make([]Medication, 0, len(meds))
	for _, med := range meds {
		name := strings.ToLower(strings.TrimSpace(med.Name))
		if name == "" {
			continue
		}
		prescriber := strings.ToLower(strings.TrimSpace(med.Prescriber))
		if prescriber == "" {
			prescriber = "unknown"
		}
		key := name + "-" + prescriber
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, med)
	}
	return out
}

func dedupeConditions(conds []Condition) []Condition {
	seen := make(map[string]struct{}, len(conds))
	out := make([]Condition, 0, len(conds))
	for _, cond := range conds {
		key := strings.ToLower(strings.TrimSpace(cond.Name))
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, cond)
	}
	return out
}
