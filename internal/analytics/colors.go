package analytics

import (
	"sort"
	"strings"
)

var knownColors = map[string]string{
	"headache":   "#3B82F6",
	"fever":      "#EF4444",
	"cough":      "#10B981",
	"fatigue":    "#F59E0B",
	"nausea":     "#8B5CF6",
	"pain":       "#EC4899",
	"dizziness":  "#06B6D4",
	"insomnia":   "#84CC16",
	"anxiety":    "#F97316",
	"depression": "#6366F1",
}

var palette = []string{
	"#3B82F6", "#EF4444", "#10B981", "#F59E0B", "#8B5CF6",
	"#EC4899", "#06B6D4", "#84CC16", "#F97316", "#6366F1",
}

// SymptomColor returns the fixed color for a well-known symptom, matched
// case-insensitively, and otherwise the palette color at index.
func SymptomColor(name string, index int) string {
	if c, ok := knownColors[strings.ToLower(strings.TrimSpace(name))]; ok {
		return c
	}
	if index < 0 {
		index = -index
	}
	return palette[index%len(palette)]
}

// Frequencies orders items by count, highest first with ties keeping server
// order, and fills in each item's share of the total and its color.
// Percentages are zero when the total is zero.
func Frequencies(items []FrequencyItem) []FrequencyItem {
	out := make([]FrequencyItem, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})

	total := 0
	for _, item := range out {
		total += item.Count
	}
	for i := range out {
		out[i].Percentage = 0
		if total > 0 {
			out[i].Percentage = float64(out[i].Count) / float64(total) * 100
		}
		out[i].Color = SymptomColor(out[i].Symptom, i)
	}
	return out
}

// ColorIntensity returns a copy of in with every series colored. Unknown
// symptoms take palette colors in name order so the result is stable.
func ColorIntensity(in Intensity) Intensity {
	names := make([]string, 0, len(in.Symptoms))
	for name := range in.Symptoms {
		names = append(names, name)
	}
	sort.Strings(names)

	out := Intensity{
		Dates:        append([]string(nil), in.Dates...),
		Symptoms:     make(map[string]Series, len(in.Symptoms)),
		OverallTrend: append([]TrendPoint(nil), in.OverallTrend...),
	}
	for i, name := range names {
		series := in.Symptoms[name]
		if series.Name == "" {
			series.Name = name
		}
		series.Points = append([]IntensityPoint(nil), series.Points...)
		series.Color = SymptomColor(series.Name, i)
		out.Symptoms[name] = series
	}
	return out
}
