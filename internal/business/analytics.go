package business

import "math"

// Filter narrows the analytics view. A zero rating means unrated and is never
// excluded by MinRating.
type Filter struct {
	RequirePhone   bool    `json:"require_phone"`
	RequireWebsite bool    `json:"require_website"`
	MinRating      float64 `json:"min_rating"`
}

func (f Filter) Match(r Record) bool {
	if f.RequirePhone && r.Phone == "" {
		return false
	}
	if f.RequireWebsite && r.Website == "" {
		return false
	}
	if r.Rating != 0 && r.Rating < f.MinRating {
		return false
	}
	return true
}

func (f Filter) Apply(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Stats covers the whole set for Total/WithPhone/WithWebsite and the filtered
// view for the remaining fields. RatingDistribution[i] counts ratings that
// round to i+1 stars.
type Stats struct {
	Total              int     `json:"total"`
	WithPhone          int     `json:"with_phone"`
	WithWebsite        int     `json:"with_website"`
	Filtered           int     `json:"filtered"`
	AverageRating      float64 `json:"average_rating"`
	RatingDistribution [5]int  `json:"rating_distribution"`
}

func Analyze(records []Record, f Filter) Stats {
	st := Stats{Total: len(records)}
	for _, r := range records {
		if r.Phone != "" {
			st.WithPhone++
		}
		if r.Website != "" {
			st.WithWebsite++
		}
	}
	view := f.Apply(records)
	st.Filtered = len(view)
	if len(view) == 0 {
		return st
	}
	sum := 0.0
	for _, r := range view {
		sum += r.Rating
		stars := int(math.Round(r.Rating))
		if stars >= 1 && stars <= 5 {
			st.RatingDistribution[stars-1]++
		}
	}
	st.AverageRating = sum / float64(len(view))
	return st
}
