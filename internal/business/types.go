package business

const (
	UnknownName     = "Unknown Name"
	UnknownAddress  = "Unknown Address"
	UnknownIndustry = "Unknown Industry"
	UnknownLocation = "Unknown Location"

	MapsSearchBaseURL = "https://www.google.com/maps/search/?api=1&query="
)

// Record is one discovered business. ID keys rendering only; identity for
// deduplication and history is IdentityKey.
type Record struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Address      string  `json:"address"`
	Rating       float64 `json:"rating"`
	ReviewCount  int     `json:"reviewCount"`
	Phone        string  `json:"phone,omitempty"`
	Website      string  `json:"website,omitempty"`
	BusinessType string  `json:"businessType"`
	Description  string  `json:"description"`
	MapsURI      string  `json:"mapsUri"`
}

// HistoryItem is a persisted snapshot of a session's results. Data is owned
// by the item and never shares backing storage with a live session.
type HistoryItem struct {
	ID        string   `json:"id"`
	Timestamp int64    `json:"timestamp"`
	Industry  string   `json:"industry"`
	Location  string   `json:"location"`
	Count     int      `json:"count"`
	Data      []Record `json:"data"`
}

// Clone returns a copy of records that shares no backing array.
func Clone(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	copy(out, records)
	return out
}

func Names(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.Name)
	}
	return out
}
