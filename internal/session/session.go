package session

import (
	"errors"

	"github.com/joelkehle/bizfinder/internal/business"
	"github.com/joelkehle/bizfinder/internal/lookup"
)

type State string

const (
	StateIdle        State = "idle"
	StateSearching   State = "searching"
	StateActive      State = "active"
	StateLoadingMore State = "loading_more"
)

type ViewMode string

const (
	ViewList  ViewMode = "list"
	ViewTable ViewMode = "table"
)

func (v ViewMode) Valid() bool { return v == ViewList || v == ViewTable }

const (
	MsgMissingInput   = "Please enter industry and main location"
	MsgAuthSearch     = "API Key Error: Key is invalid, expired or revoked. Please update your settings."
	MsgAuthLoadMore   = "API Key Error: Key is invalid or has been revoked."
	MsgLoadMoreFailed = "Unable to load more results. Please check your connection."
	MsgUnexpected     = "An unexpected error occurred"
)

var (
	ErrMissingInput         = errors.New(MsgMissingInput)
	ErrBusy                 = errors.New("a lookup is already in progress")
	ErrNotActive            = errors.New("no results to extend")
	ErrHistoryNotFound      = errors.New("history item not found")
	ErrConfirmationRequired = errors.New("clearing history requires confirmation")
	ErrInvalidViewMode      = errors.New("view mode must be list or table")
	ErrSuperseded           = errors.New("search superseded by a newer action")
)

// Failure is a lookup failure rewritten into a message fit for the user.
type Failure struct {
	Message string
	Err     error
}

func (f *Failure) Error() string { return f.Message }

func (f *Failure) Unwrap() error { return f.Err }

// Notice is an informational outcome of LoadMore. Notices are never stored
// in the session.
type Notice string

const (
	NoticeNone          Notice = ""
	NoticeExhausted     Notice = "exhausted"
	NoticeAllDuplicates Notice = "all_duplicates"
	NoticeStale         Notice = "stale"
)

func (n Notice) Message() string {
	switch n {
	case NoticeExhausted:
		return "Found all available businesses in this specific area. Try expanding your location search (e.g., Change 'District 1' to 'Ho Chi Minh City')."
	case NoticeAllDuplicates:
		return "All businesses found in this area are already in your list. Try a slightly different location name."
	case NoticeStale:
		return "The session changed while more results were loading; the late results were discarded."
	default:
		return ""
	}
}

type LoadMoreResult struct {
	Added  int    `json:"added"`
	Total  int    `json:"total"`
	Notice Notice `json:"notice,omitempty"`
}

// Session is the single active unit of work. Industry and Location are the
// current inputs; QueryIndustry and QueryLocation label the search the
// results came from and name new history items.
type Session struct {
	Industry      string            `json:"industry"`
	Location      string            `json:"location"`
	QueryIndustry string            `json:"query_industry"`
	QueryLocation string            `json:"query_location"`
	Results       []business.Record `json:"results"`
	HistoryID     string            `json:"history_id,omitempty"`
	Searching     bool              `json:"searching"`
	LoadingMore   bool              `json:"loading_more"`
	Error         string            `json:"error,omitempty"`
	HasSearched   bool              `json:"has_searched"`
	ViewMode      ViewMode          `json:"view_mode"`
}

func (s Session) State() State {
	switch {
	case s.Searching:
		return StateSearching
	case s.LoadingMore:
		return StateLoadingMore
	case !s.HasSearched:
		return StateIdle
	default:
		return StateActive
	}
}

func searchErrorMessage(err error) string {
	if lookup.IsAuthFailure(err) {
		return MsgAuthSearch
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return MsgUnexpected
}

func loadMoreErrorMessage(err error) string {
	if lookup.IsAuthFailure(err) {
		return MsgAuthLoadMore
	}
	return MsgLoadMoreFailed
}
