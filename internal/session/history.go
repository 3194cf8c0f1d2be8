package session

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joelkehle/bizfinder/internal/business"
)

// Save applies the save/update rule to history and returns the new list.
// Empty results save nothing. A historyID naming an existing item updates its
// timestamp, count and data but never its labels. Otherwise a new item goes
// to the front. Save never removes items.
func Save(history []business.HistoryItem, results []business.Record, historyID, industry, location string, now time.Time) ([]business.HistoryItem, business.HistoryItem, bool) {
	if len(results) == 0 {
		return history, business.HistoryItem{}, false
	}
	ts := now.UnixMilli()
	data := business.Clone(results)

	if historyID != "" {
		for i := range history {
			if history[i].ID != historyID {
				continue
			}
			out := append([]business.HistoryItem(nil), history...)
			item := out[i]
			if ts <= item.Timestamp {
				ts = item.Timestamp + 1
			}
			item.Timestamp = ts
			item.Count = len(data)
			item.Data = data
			out[i] = item
			return out, item, true
		}
	}

	if strings.TrimSpace(industry) == "" {
		industry = business.UnknownIndustry
	}
	if strings.TrimSpace(location) == "" {
		location = business.UnknownLocation
	}
	item := business.HistoryItem{
		ID:        newHistoryID(history, ts),
		Timestamp: ts,
		Industry:  industry,
		Location:  location,
		Count:     len(data),
		Data:      data,
	}
	out := make([]business.HistoryItem, 0, len(history)+1)
	out = append(out, item)
	out = append(out, history...)
	return out, item, true
}

// Trim drops the oldest items until at most limit remain. A limit of zero or
// less keeps everything. Items whose id is in keep are never dropped.
func Trim(history []business.HistoryItem, limit int, keep ...string) []business.HistoryItem {
	if limit <= 0 || len(history) <= limit {
		return history
	}
	excess := len(history) - limit
	out := make([]business.HistoryItem, len(history))
	copy(out, history)
	for i := len(out) - 1; i >= 0 && excess > 0; i-- {
		if slices.Contains(keep, out[i].ID) {
			continue
		}
		out = append(out[:i], out[i+1:]...)
		excess--
	}
	return out
}

// newHistoryID derives an id from the millisecond timestamp, stepping
// forward until it is unused.
func newHistoryID(history []business.HistoryItem, ts int64) string {
	used := make(map[string]struct{}, len(history))
	for _, h := range history {
		used[h.ID] = struct{}{}
	}
	for {
		id := strconv.FormatInt(ts, 10)
		if _, ok := used[id]; !ok {
			return id
		}
		ts++
	}
}

func indexOf(history []business.HistoryItem, id string) int {
	for i := range history {
		if history[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneHistory(history []business.HistoryItem) []business.HistoryItem {
	out := make([]business.HistoryItem, len(history))
	for i, h := range history {
		h.Data = business.Clone(h.Data)
		out[i] = h
	}
	return out
}
