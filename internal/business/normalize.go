package business

import (
	"encoding/json"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
)

var (
	floatPrefixRe = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?`)
	intPrefixRe   = regexp.MustCompile(`^[+-]?\d+`)
)

// Normalize builds a Record from one element of a parsed model payload.
// It never fails: missing or malformed fields fall back to placeholders or
// zero, and MapsURI is set to the search fallback for name and address.
func Normalize(raw any, businessType string) Record {
	obj, _ := raw.(map[string]any)

	name := stringField(obj, "name")
	if name == "" {
		name = UnknownName
	}
	address := stringField(obj, "address")
	if address == "" {
		address = UnknownAddress
	}

	return Record{
		ID:           NewRecordID(),
		Name:         name,
		Address:      address,
		Rating:       ratingField(obj["rating"]),
		ReviewCount:  reviewCountField(obj["reviewCount"]),
		Phone:        stringField(obj, "phone"),
		Website:      stringField(obj, "website"),
		BusinessType: businessType,
		Description:  stringField(obj, "description"),
		MapsURI:      FallbackMapsURI(name, address),
	}
}

func NewRecordID() string {
	return "biz-" + uuid.NewString()
}

// FallbackMapsURI is the deterministic map search link used when no citation
// matches a record.
func FallbackMapsURI(name, address string) string {
	q := url.QueryEscape(name + " " + address)
	return MapsSearchBaseURL + strings.ReplaceAll(q, "+", "%20")
}

func cleanText(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

func stringField(obj map[string]any, key string) string {
	if obj == nil {
		return ""
	}
	s, ok := obj[key].(string)
	if !ok {
		return ""
	}
	s = cleanText(s)
	switch strings.ToLower(s) {
	case "null", "n/a", "none":
		return ""
	}
	return s
}

func ratingField(v any) float64 {
	f, ok := numberValue(v, false)
	if !ok || f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func reviewCountField(v any) int {
	f, ok := numberValue(v, true)
	if !ok || f < 0 || math.IsNaN(f) || f > math.MaxInt32 {
		return 0
	}
	return int(f)
}

// numberValue accepts JSON numbers and numeric strings. Strings parse their
// leading numeric prefix, so "4.5 stars" is 4.5. Integer parsing drops
// thousands separators first ("1,234 reviews" is 1234).
func numberValue(v any, integer bool) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if integer {
			return math.Trunc(n), true
		}
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		return numberValue(n.String(), integer)
	case string:
		s := strings.TrimSpace(n)
		if integer {
			s = strings.ReplaceAll(s, ",", "")
			m := intPrefixRe.FindString(s)
			if m == "" {
				return 0, false
			}
			i, err := strconv.ParseInt(m, 10, 64)
			if err != nil {
				return 0, false
			}
			return float64(i), true
		}
		m := floatPrefixRe.FindString(s)
		if m == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
