package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/joelkehle/bizfinder/internal/business"
	"github.com/joelkehle/bizfinder/internal/store"
)

const keyPrefix = "bizFinder_"

const (
	KeyIndustry         = keyPrefix + "industry"
	KeyLocation         = keyPrefix + "location"
	KeyQueryIndustry    = keyPrefix + "queryIndustry"
	KeyQueryLocation    = keyPrefix + "queryLocation"
	KeyViewMode         = keyPrefix + "viewMode"
	KeyCurrentHistoryID = keyPrefix + "currentHistoryId"
	KeyResultData       = keyPrefix + "data"
	KeyHistory          = keyPrefix + "history"
)

// Lookup finds businesses for an industry in a location, skipping the names
// in excludeNames.
type Lookup interface {
	Search(ctx context.Context, industry, location string, excludeNames []string) ([]business.Record, error)
}

type Config struct {
	// HistoryLimit caps the history list when positive. Zero keeps every item
	// until the user deletes it.
	HistoryLimit int
	Clock        func() time.Time
}

// Controller owns the session and its history. Every mutation updates memory
// first and then writes the affected keys to the store; store failures are
// logged and never roll back the in-memory state.
//
// Lookups run outside the lock. Each action that replaces or resets the
// session bumps an epoch, and a lookup whose epoch is no longer current is
// discarded when it returns.
type Controller struct {
	mu       sync.Mutex
	lookup   Lookup
	store    store.Store
	cfg      Config
	sess     Session
	history  []business.HistoryItem
	epoch    uint64
	inflight bool
}

func NewController(lk Lookup, st store.Store, cfg Config) (*Controller, error) {
	if lk == nil {
		return nil, fmt.Errorf("lookup is required")
	}
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	c := &Controller{lookup: lk, store: st, cfg: cfg}
	if err := c.load(); err != nil {
		return nil, err
	}
	return c, nil
}

// load restores the previous session. Malformed JSON under a key is logged
// and treated as absent.
func (c *Controller) load() error {
	get := func(key string) (string, bool, error) {
		v, ok, err := c.store.Get(key)
		if err != nil {
			return "", false, fmt.Errorf("load %s: %w", key, err)
		}
		return v, ok, nil
	}

	c.sess.ViewMode = ViewList
	industry, _, err := get(KeyIndustry)
	if err != nil {
		return err
	}
	location, _, err := get(KeyLocation)
	if err != nil {
		return err
	}
	c.sess.Industry, c.sess.Location = industry, location
	c.sess.QueryIndustry, c.sess.QueryLocation = industry, location
	if v, ok, err := get(KeyQueryIndustry); err != nil {
		return err
	} else if ok {
		c.sess.QueryIndustry = v
	}
	if v, ok, err := get(KeyQueryLocation); err != nil {
		return err
	} else if ok {
		c.sess.QueryLocation = v
	}

	if v, ok, err := get(KeyViewMode); err != nil {
		return err
	} else if ok && ViewMode(v).Valid() {
		c.sess.ViewMode = ViewMode(v)
	}

	if c.sess.HistoryID, _, err = get(KeyCurrentHistoryID); err != nil {
		return err
	}

	if v, ok, err := get(KeyResultData); err != nil {
		return err
	} else if ok {
		var records []business.Record
		if err := json.Unmarshal([]byte(v), &records); err != nil {
			log.Printf("session load_ignored key=%s err=%q", KeyResultData, err.Error())
		} else if len(records) > 0 {
			c.sess.Results = records
			c.sess.HasSearched = true
		}
	}

	if v, ok, err := get(KeyHistory); err != nil {
		return err
	} else if ok {
		var items []business.HistoryItem
		if err := json.Unmarshal([]byte(v), &items); err != nil {
			log.Printf("session load_ignored key=%s err=%q", KeyHistory, err.Error())
		} else {
			c.history = items
		}
	}

	log.Printf("session restored results=%d history=%d history_id=%q", len(c.sess.Results), len(c.history), c.sess.HistoryID)
	return nil
}

func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.sess
	s.Results = business.Clone(c.sess.Results)
	return s
}

func (c *Controller) History() []business.HistoryItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneHistory(c.history)
}

// Search starts a fresh session. A non-empty previous session is saved to
// history first. The lookup's results are stored as returned.
func (c *Controller) Search(ctx context.Context, industry, location string) error {
	industry = strings.TrimSpace(industry)
	location = strings.TrimSpace(location)

	c.mu.Lock()
	if c.inflight {
		c.mu.Unlock()
		return ErrBusy
	}
	if industry == "" || location == "" {
		c.sess.Error = MsgMissingInput
		c.mu.Unlock()
		return ErrMissingInput
	}

	c.saveLocked()
	c.epoch++
	epoch := c.epoch
	c.inflight = true
	c.sess.Industry, c.sess.Location = industry, location
	c.sess.QueryIndustry, c.sess.QueryLocation = industry, location
	c.sess.HistoryID = ""
	c.sess.Results = nil
	c.sess.Searching = true
	c.sess.LoadingMore = false
	c.sess.Error = ""
	c.sess.HasSearched = true
	c.persistInputsLocked()
	c.persistQueryLocked()
	c.persistHistoryIDLocked()
	c.persistResultsLocked()
	c.mu.Unlock()

	results, err := c.lookup.Search(ctx, industry, location, nil)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight = false
	if epoch != c.epoch {
		log.Printf("session search_discarded industry=%q location=%q", industry, location)
		return ErrSuperseded
	}
	c.sess.Searching = false
	if err != nil {
		msg := searchErrorMessage(err)
		c.sess.Error = msg
		log.Printf("session search_failed industry=%q location=%q err=%q", industry, location, err.Error())
		return &Failure{Message: msg, Err: err}
	}
	c.sess.Results = business.Clone(results)
	c.persistResultsLocked()
	log.Printf("session search_complete industry=%q location=%q results=%d", industry, location, len(results))
	return nil
}

// LoadMore asks for businesses not already in the session and merges them
// in. It uses the current inputs, so changing the location and loading more
// extends the same result set. A linked history item is updated after the
// merge; an unlinked session is not saved.
func (c *Controller) LoadMore(ctx context.Context) (LoadMoreResult, error) {
	c.mu.Lock()
	if c.inflight {
		c.mu.Unlock()
		return LoadMoreResult{}, ErrBusy
	}
	if len(c.sess.Results) == 0 {
		c.mu.Unlock()
		return LoadMoreResult{}, ErrNotActive
	}
	industry, location := c.sess.Industry, c.sess.Location
	if strings.TrimSpace(industry) == "" {
		industry = c.sess.QueryIndustry
	}
	if strings.TrimSpace(location) == "" {
		location = c.sess.QueryLocation
	}
	exclude := business.Names(c.sess.Results)
	epoch := c.epoch
	c.inflight = true
	c.sess.LoadingMore = true
	c.mu.Unlock()

	records, err := c.lookup.Search(ctx, industry, location, exclude)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight = false
	if epoch != c.epoch {
		log.Printf("session load_more_discarded industry=%q location=%q", industry, location)
		return LoadMoreResult{Total: len(c.sess.Results), Notice: NoticeStale}, nil
	}
	c.sess.LoadingMore = false
	if err != nil {
		log.Printf("session load_more_failed industry=%q location=%q err=%q", industry, location, err.Error())
		return LoadMoreResult{Total: len(c.sess.Results)}, &Failure{Message: loadMoreErrorMessage(err), Err: err}
	}
	if len(records) == 0 {
		return LoadMoreResult{Total: len(c.sess.Results), Notice: NoticeExhausted}, nil
	}

	merged, added := business.Merge(c.sess.Results, records)
	c.sess.Results = merged
	c.persistResultsLocked()
	if c.sess.HistoryID != "" {
		c.saveLocked()
	}
	res := LoadMoreResult{Added: added, Total: len(merged)}
	if added == 0 {
		res.Notice = NoticeAllDuplicates
	}
	log.Printf("session load_more_complete industry=%q location=%q added=%d total=%d", industry, location, added, len(merged))
	return res, nil
}

// SaveSession saves the current results to history and links the session to
// the saved item, so repeated saves update one entry.
func (c *Controller) SaveSession() (business.HistoryItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.saveLocked()
	if ok && c.sess.HistoryID != item.ID {
		c.sess.HistoryID = item.ID
		c.persistHistoryIDLocked()
	}
	return item, ok
}

// Clear saves the session and resets it to idle. The view mode survives.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saveLocked()
	c.epoch++
	c.sess = Session{ViewMode: c.sess.ViewMode}
	for _, key := range []string{KeyResultData, KeyIndustry, KeyLocation, KeyQueryIndustry, KeyQueryLocation, KeyCurrentHistoryID} {
		c.remove(key)
	}
}

// Restore makes a history item the active session. Restoring the item that
// is already active does nothing and reports false.
func (c *Controller) Restore(id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id != "" && id == c.sess.HistoryID {
		return false, nil
	}
	if indexOf(c.history, id) < 0 {
		return false, ErrHistoryNotFound
	}
	c.saveLocked(id)
	item := c.history[indexOf(c.history, id)]

	c.epoch++
	c.sess.Industry, c.sess.Location = item.Industry, item.Location
	c.sess.QueryIndustry, c.sess.QueryLocation = item.Industry, item.Location
	c.sess.Results = business.Clone(item.Data)
	c.sess.HistoryID = item.ID
	c.sess.HasSearched = true
	c.sess.Searching = false
	c.sess.LoadingMore = false
	c.sess.Error = ""
	c.persistInputsLocked()
	c.persistQueryLocked()
	c.persistHistoryIDLocked()
	c.persistResultsLocked()
	log.Printf("session restored_history id=%s results=%d", item.ID, len(item.Data))
	return true, nil
}

// DeleteHistory removes one item. If it was the active session's item the
// session keeps its results but is no longer linked.
func (c *Controller) DeleteHistory(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := indexOf(c.history, id)
	if i < 0 {
		return ErrHistoryNotFound
	}
	c.history = append(c.history[:i:i], c.history[i+1:]...)
	c.persistHistoryLocked()
	if c.sess.HistoryID == id {
		c.sess.HistoryID = ""
		c.persistHistoryIDLocked()
	}
	return nil
}

// ClearHistory empties history. Clearing an empty history needs no
// confirmation; anything else does.
func (c *Controller) ClearHistory(confirmed bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.history) == 0 {
		return nil
	}
	if !confirmed {
		return ErrConfirmationRequired
	}
	c.history = nil
	c.persistHistoryLocked()
	if c.sess.HistoryID != "" {
		c.sess.HistoryID = ""
		c.persistHistoryIDLocked()
	}
	return nil
}

// SetInputs records the industry and location inputs without searching.
func (c *Controller) SetInputs(industry, location string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess.Industry, c.sess.Location = industry, location
	c.persistInputsLocked()
}

func (c *Controller) SetViewMode(mode ViewMode) error {
	if !mode.Valid() {
		return ErrInvalidViewMode
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess.ViewMode = mode
	c.put(KeyViewMode, string(mode))
	return nil
}

// saveLocked saves the session and trims history to the configured limit.
// The saved item and the ids in keep survive the trim.
func (c *Controller) saveLocked(keep ...string) (business.HistoryItem, bool) {
	history, item, ok := Save(c.history, c.sess.Results, c.sess.HistoryID, c.sess.QueryIndustry, c.sess.QueryLocation, c.cfg.Clock())
	if !ok {
		return item, false
	}
	c.history = Trim(history, c.cfg.HistoryLimit, append(keep, item.ID)...)
	c.persistHistoryLocked()
	log.Printf("session saved_history id=%s count=%d", item.ID, item.Count)
	return item, true
}

func (c *Controller) persistInputsLocked() {
	c.put(KeyIndustry, c.sess.Industry)
	c.put(KeyLocation, c.sess.Location)
}

func (c *Controller) persistQueryLocked() {
	c.put(KeyQueryIndustry, c.sess.QueryIndustry)
	c.put(KeyQueryLocation, c.sess.QueryLocation)
}

func (c *Controller) persistHistoryIDLocked() {
	if c.sess.HistoryID == "" {
		c.remove(KeyCurrentHistoryID)
		return
	}
	c.put(KeyCurrentHistoryID, c.sess.HistoryID)
}

// persistResultsLocked writes non-empty results and removes the key once a
// search has emptied them.
func (c *Controller) persistResultsLocked() {
	if len(c.sess.Results) == 0 {
		if c.sess.HasSearched {
			c.remove(KeyResultData)
		}
		return
	}
	c.putJSON(KeyResultData, c.sess.Results)
}

func (c *Controller) persistHistoryLocked() {
	items := c.history
	if items == nil {
		items = []business.HistoryItem{}
	}
	c.putJSON(KeyHistory, items)
}

func (c *Controller) putJSON(key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Printf("session persist_failed key=%s err=%q", key, err.Error())
		return
	}
	c.put(key, string(raw))
}

func (c *Controller) put(key, value string) {
	if err := c.store.Set(key, value); err != nil {
		log.Printf("session persist_failed key=%s err=%q", key, err.Error())
	}
}

func (c *Controller) remove(key string) {
	if err := c.store.Remove(key); err != nil {
		log.Printf("session persist_failed key=%s err=%q", key, err.Error())
	}
}
