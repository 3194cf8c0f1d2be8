package business

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

type SortOption string

const (
	SortRatingDesc  SortOption = "rating_desc"
	SortReviewsDesc SortOption = "reviews_desc"
	SortNameAsc     SortOption = "name_asc"
)

func ParseSortOption(s string) (SortOption, error) {
	switch SortOption(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortRatingDesc:
		return SortRatingDesc, nil
	case SortReviewsDesc:
		return SortReviewsDesc, nil
	case SortNameAsc:
		return SortNameAsc, nil
	default:
		return "", fmt.Errorf("unknown sort option %q", s)
	}
}

// Sorted returns a sorted copy of records. Ties keep their stored order.
// Name ordering is collated for Vietnamese, which also orders plain Latin
// names the usual way.
func Sorted(records []Record, opt SortOption) []Record {
	out := Clone(records)
	switch opt {
	case SortReviewsDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].ReviewCount > out[j].ReviewCount })
	case SortNameAsc:
		col := collate.New(language.Vietnamese, collate.IgnoreCase)
		sort.SliceStable(out, func(i, j int) bool { return col.CompareString(out[i].Name, out[j].Name) < 0 })
	default:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Rating > out[j].Rating })
	}
	return out
}
