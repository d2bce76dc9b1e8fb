package analytics

import "time"

// IntensityPoint is one day of a symptom's intensity series
type IntensityPoint struct {
	Date        string  `json:"date"`
	Intensity   float64 `json:"intensity"`
	Occurrences int     `json:"occurrences"`
}

// Series is the intensity history of a single symptom
type Series struct {
	Name   string           `json:"name"`
	Points []IntensityPoint `json:"data"`
	Color  string           `json:"color"`
}

// TrendPoint is the average intensity across all symptoms for a date
type TrendPoint struct {
	Date             string  `json:"date"`
	AverageIntensity float64 `json:"average_intensity"`
}

// Intensity is the symptom intensity time series over the selected window
type Intensity struct {
	Dates        []string          `json:"dates"`
	Symptoms     map[string]Series `json:"symptoms"`
	OverallTrend []TrendPoint      `json:"overall_trend"`
}

// FrequencyItem is one symptom's occurrence count. Percentage and Color are
// filled in locally.
type FrequencyItem struct {
	Symptom        string  `json:"symptom"`
	Count          int     `json:"frequency"`
	Percentage     float64 `json:"percentage"`
	Color          string  `json:"color"`
	LastOccurrence string  `json:"last_occurrence,omitempty"`
}

// Summary holds headline figures across all recorded symptoms
type Summary struct {
	TotalRecorded           int     `json:"total_symptoms_recorded"`
	MostFrequentSymptom     string  `json:"most_frequent_symptom"`
	MostFrequentCount       int     `json:"most_frequent_count"`
	HighestIntensitySymptom string  `json:"highest_intensity_symptom"`
	HighestIntensityValue   float64 `json:"highest_intensity_value"`
}

// Snapshot is the last successfully fetched value of each facet.
// LastUpdated is zero until at least one refresh has succeeded.
type Snapshot struct {
	Intensity   *Intensity
	Frequency   []FrequencyItem
	Summary     *Summary
	LastUpdated time.Time
}

// TimeRange is the analytics window
type TimeRange struct {
	IntensityDays   int
	FrequencyMonths int
}
