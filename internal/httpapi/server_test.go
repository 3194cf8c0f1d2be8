package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joelkehle/bizfinder/internal/business"
	"github.com/joelkehle/bizfinder/internal/session"
	"github.com/joelkehle/bizfinder/internal/store"
)

type fakeLookup struct {
	mu        sync.Mutex
	responses [][]business.Record
	errs      []error
	calls     int
}

func (f *fakeLookup) Search(ctx context.Context, industry, location string, exclude []string) ([]business.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if idx < len(f.errs) && f.errs[idx] != nil {
		return nil, f.errs[idx]
	}
	if idx < len(f.responses) {
		return f.responses[idx], nil
	}
	return nil, nil
}

type fakeSubAreas struct{ areas []string }

func (f fakeSubAreas) ListSubAreas(ctx context.Context, location string) []string { return f.areas }

type fakePDFRenderer struct {
	pdf      []byte
	err      error
	markdown string
}

func (f *fakePDFRenderer) Render(ctx context.Context, markdown string) ([]byte, error) {
	f.markdown = markdown
	return f.pdf, f.err
}

func rec(name string, rating float64, phone string) business.Record {
	return business.Record{
		ID:           "biz-" + name,
		Name:         name,
		Address:      name + " Street",
		Rating:       rating,
		ReviewCount:  int(rating * 100),
		Phone:        phone,
		BusinessType: "Coffee Shop",
		MapsURI:      "https://maps.example/" + name,
	}
}

type testEnv struct {
	handler  http.Handler
	lookup   *fakeLookup
	store    *store.MemoryStore
	pdf      *fakePDFRenderer
	sessions *session.Controller
}

func newTestEnv(t *testing.T, lk *fakeLookup) *testEnv {
	t.Helper()
	st := store.NewMemoryStore()
	ctrl, err := session.NewController(lk, st, session.Config{})
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	pdf := &fakePDFRenderer{pdf: []byte("%PDF-1.7 fake")}
	h := NewServer(Config{
		Sessions:    ctrl,
		SubAreas:    fakeSubAreas{areas: []string{"Ben Nghe", "Ben Thanh"}},
		PDFRenderer: pdf,
		Model:       "test-model",
		Clock:       func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) },
	})
	return &testEnv{handler: h, lookup: lk, store: st, pdf: pdf, sessions: ctrl}
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r *bytes.Reader
	if body != nil {
		blob, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		r = bytes.NewReader(blob)
	} else {
		r = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rr.Body.String(), err)
	}
	return out
}

type errorEnvelope struct {
	OK    bool `json:"ok"`
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Transient bool   `json:"transient"`
	} `json:"error"`
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) errorEnvelope {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("status=%d want %d body=%s", rr.Code, status, rr.Body.String())
	}
	env := decode[errorEnvelope](t, rr)
	if env.OK || env.Error.Code != code {
		t.Fatalf("unexpected envelope %+v", env)
	}
	return env
}

func TestSearchLoadMoreSaveFlow(t *testing.T) {
	env := newTestEnv(t, &fakeLookup{responses: [][]business.Record{
		{rec("A", 4.1, "1"), rec("B", 4.9, ""), rec("C", 3.2, "3"), rec("D", 0, ""), rec("E", 4.5, "5")},
		{rec("F", 4.0, ""), rec("G", 2.0, ""), rec("H", 5.0, "8"), rec("A", 4.1, "1"), rec("B", 4.9, "")},
	}})

	rr := doRequest(t, env.handler, http.MethodPost, "/v1/search", map[string]any{"industry": "Coffee Shop", "location": "District 1"})
	if rr.Code != 200 {
		t.Fatalf("search status=%d body=%s", rr.Code, rr.Body.String())
	}
	view := decode[sessionView](t, rr)
	if view.Count != 5 || view.State != session.StateActive || view.Results[0].Name != "B" {
		t.Fatalf("unexpected view %+v", view)
	}

	rr = doRequest(t, env.handler, http.MethodPost, "/v1/search/more", nil)
	if rr.Code != 200 {
		t.Fatalf("more status=%d body=%s", rr.Code, rr.Body.String())
	}
	more := decode[struct {
		Added   int         `json:"added"`
		Total   int         `json:"total"`
		Notice  string      `json:"notice"`
		Session sessionView `json:"session"`
	}](t, rr)
	if more.Added != 3 || more.Total != 8 || more.Notice != "" || more.Session.Count != 8 {
		t.Fatalf("unexpected load more %+v", more)
	}

	rr = doRequest(t, env.handler, http.MethodGet, "/v1/history", nil)
	if h := decode[struct {
		History []historySummary `json:"history"`
	}](t, rr); len(h.History) != 0 {
		t.Fatalf("load more must not save an unlinked session: %+v", h)
	}

	rr = doRequest(t, env.handler, http.MethodPost, "/v1/session/save", nil)
	saved := decode[struct {
		Saved bool           `json:"saved"`
		Item  historySummary `json:"item"`
	}](t, rr)
	if !saved.Saved || saved.Item.Count != 8 || saved.Item.Industry != "Coffee Shop" {
		t.Fatalf("unexpected save %+v", saved)
	}

	rr = doRequest(t, env.handler, http.MethodGet, "/v1/session?sort=name_asc", nil)
	view = decode[sessionView](t, rr)
	if view.Sort != "name_asc" || view.Results[0].Name != "A" || view.HistoryID != saved.Item.ID {
		t.Fatalf("unexpected sorted view %+v", view)
	}
}

func TestSearchSurvivesClientDisconnect(t *testing.T) {
	env := newTestEnv(t, &fakeLookup{responses: [][]business.Record{
		{rec("A", 4.1, "1")},
		{rec("B", 4.9, "")},
	}})
	cancelled := func(path string, body string) *httptest.ResponseRecorder {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body)).WithContext(ctx)
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		env.handler.ServeHTTP(rr, req)
		return rr
	}

	rr := cancelled("/v1/search", `{"industry":"Coffee Shop","location":"District 1"}`)
	if rr.Code != 200 {
		t.Fatalf("search status=%d body=%s", rr.Code, rr.Body.String())
	}
	rr = cancelled("/v1/search/more", "")
	if rr.Code != 200 {
		t.Fatalf("more status=%d body=%s", rr.Code, rr.Body.String())
	}
	s := env.sessions.Snapshot()
	if s.Error != "" || len(s.Results) != 2 {
		t.Fatalf("expected both lookups to complete, got error=%q results=%d", s.Error, len(s.Results))
	}
}

func TestSearchFallsBackToStoredInputs(t *testing.T) {
	env := newTestEnv(t, &fakeLookup{responses: [][]business.Record{{rec("A", 4, "")}}})
	rr := doRequest(t, env.handler, http.MethodPut, "/v1/session/inputs", map[string]any{"industry": "Bakery", "location": "District 3"})
	if rr.Code != 200 {
		t.Fatalf("inputs status=%d", rr.Code)
	}
	rr = doRequest(t, env.handler, http.MethodPost, "/v1/search", nil)
	view := decode[sessionView](t, rr)
	if rr.Code != 200 || view.Industry != "Bakery" || view.Count != 1 {
		t.Fatalf("status=%d view=%+v", rr.Code, view)
	}
}

func TestSearchErrors(t *testing.T) {
	t.Run("missing input", func(t *testing.T) {
		env := newTestEnv(t, &fakeLookup{})
		rr := doRequest(t, env.handler, http.MethodPost, "/v1/search", map[string]any{"industry": "Coffee Shop", "location": ""})
		e := expectError(t, rr, 400, CodeValidation)
		if e.Error.Message != session.MsgMissingInput {
			t.Fatalf("message = %q", e.Error.Message)
		}
	})
	t.Run("auth", func(t *testing.T) {
		env := newTestEnv(t, &fakeLookup{errs: []error{errors.New("googleapi: Error 403: API key not valid")}})
		rr := doRequest(t, env.handler, http.MethodPost, "/v1/search", map[string]any{"industry": "Coffee Shop", "location": "District 1"})
		e := expectError(t, rr, 401, CodeUnauthorized)
		if e.Error.Message != session.MsgAuthSearch {
			t.Fatalf("message = %q", e.Error.Message)
		}
	})
	t.Run("upstream", func(t *testing.T) {
		env := newTestEnv(t, &fakeLookup{errs: []error{errors.New("connection refused")}})
		rr := doRequest(t, env.handler, http.MethodPost, "/v1/search", map[string]any{"industry": "Coffee Shop", "location": "District 1"})
		expectError(t, rr, 502, CodeUpstream)
	})
	t.Run("bad json", func(t *testing.T) {
		env := newTestEnv(t, &fakeLookup{})
		req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader("{"))
		rr := httptest.NewRecorder()
		env.handler.ServeHTTP(rr, req)
		expectError(t, rr, 400, CodeValidation)
	})
	t.Run("method", func(t *testing.T) {
		env := newTestEnv(t, &fakeLookup{})
		rr := doRequest(t, env.handler, http.MethodGet, "/v1/search", nil)
		if rr.Code != http.StatusMethodNotAllowed {
			t.Fatalf("status=%d", rr.Code)
		}
	})
}

func TestLoadMoreNoticesAndErrors(t *testing.T) {
	env := newTestEnv(t, &fakeLookup{responses: [][]business.Record{{rec("A", 4, "")}, nil}})
	rr := doRequest(t, env.handler, http.MethodPost, "/v1/search/more", nil)
	expectError(t, rr, 409, CodeRejected)

	doRequest(t, env.handler, http.MethodPost, "/v1/search", map[string]any{"industry": "Coffee Shop", "location": "District 1"})
	rr = doRequest(t, env.handler, http.MethodPost, "/v1/search/more", nil)
	body := decode[map[string]any](t, rr)
	if body["notice"] != string(session.NoticeExhausted) || body["message"] != session.NoticeExhausted.Message() {
		t.Fatalf("expected exhausted notice, got %v", body)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	env := newTestEnv(t, &fakeLookup{responses: [][]business.Record{{rec("A", 4, "")}, {rec("B", 3, "")}}})
	doRequest(t, env.handler, http.MethodPost, "/v1/search", map[string]any{"industry": "Coffee Shop", "location": "District 1"})
	doRequest(t, env.handler, http.MethodPost, "/v1/search", map[string]any{"industry": "Bakery", "location": "District 3"})

	history := env.sessions.History()
	if len(history) != 1 {
		t.Fatalf("expected first session saved by second search, got %d", len(history))
	}
	id := history[0].ID

	rr := doRequest(t, env.handler, http.MethodGet, "/v1/history/"+id, nil)
	item := decode[business.HistoryItem](t, rr)
	if item.Industry != "Coffee Shop" || len(item.Data) != 1 {
		t.Fatalf("unexpected item %+v", item)
	}

	rr = doRequest(t, env.handler, http.MethodPost, "/v1/history/"+id+"/restore", nil)
	restored := decode[struct {
		Restored bool        `json:"restored"`
		Session  sessionView `json:"session"`
	}](t, rr)
	if !restored.Restored || restored.Session.Industry != "Coffee Shop" || restored.Session.HistoryID != id {
		t.Fatalf("unexpected restore %+v", restored)
	}
	rr = doRequest(t, env.handler, http.MethodPost, "/v1/history/"+id+"/restore", nil)
	if again := decode[map[string]any](t, rr); again["restored"] != false {
		t.Fatalf("second restore should be a no-op, got %v", again)
	}

	expectError(t, doRequest(t, env.handler, http.MethodPost, "/v1/history/missing/restore", nil), 404, CodeNotFound)
	expectError(t, doRequest(t, env.handler, http.MethodDelete, "/v1/history/missing", nil), 404, CodeNotFound)

	if rr := doRequest(t, env.handler, http.MethodDelete, "/v1/history/"+id, nil); rr.Code != 200 {
		t.Fatalf("delete status=%d", rr.Code)
	}
	if env.sessions.Snapshot().HistoryID != "" {
		t.Fatal("deleting the active item should unlink the session")
	}

	doRequest(t, env.handler, http.MethodPost, "/v1/session/save", nil)
	expectError(t, doRequest(t, env.handler, http.MethodDelete, "/v1/history", nil), 409, CodeRejected)
	if rr := doRequest(t, env.handler, http.MethodDelete, "/v1/history?confirm=true", nil); rr.Code != 200 {
		t.Fatalf("clear status=%d", rr.Code)
	}
	if len(env.sessions.History()) != 0 {
		t.Fatal("expected empty history")
	}
}

func TestSettingsAndClear(t *testing.T) {
	env := newTestEnv(t, &fakeLookup{responses: [][]business.Record{{rec("A", 4, "")}}})
	if rr := doRequest(t, env.handler, http.MethodPut, "/v1/settings", map[string]any{"view_mode": "table"}); rr.Code != 200 {
		t.Fatalf("settings status=%d", rr.Code)
	}
	expectError(t, doRequest(t, env.handler, http.MethodPut, "/v1/settings", map[string]any{"view_mode": "grid"}), 400, CodeValidation)

	doRequest(t, env.handler, http.MethodPost, "/v1/search", map[string]any{"industry": "Coffee Shop", "location": "District 1"})
	rr := doRequest(t, env.handler, http.MethodPost, "/v1/session/clear", nil)
	view := decode[sessionView](t, rr)
	if view.State != session.StateIdle || view.Count != 0 || view.ViewMode != session.ViewTable {
		t.Fatalf("unexpected cleared view %+v", view)
	}
	if v, _, _ := env.store.Get(session.KeyViewMode); v != "table" {
		t.Fatalf("persisted view mode = %q", v)
	}
}

func TestAnalytics(t *testing.T) {
	env := newTestEnv(t, &fakeLookup{responses: [][]business.Record{{rec("A", 4.6, "1"), rec("B", 0, "2"), rec("C", 3.2, "")}}})
	doRequest(t, env.handler, http.MethodPost, "/v1/search", map[string]any{"industry": "Coffee Shop", "location": "District 1"})

	rr := doRequest(t, env.handler, http.MethodGet, "/v1/analytics?phone=1&min_rating=4", nil)
	body := decode[struct {
		Stats business.Stats `json:"stats"`
	}](t, rr)
	if body.Stats.Total != 3 || body.Stats.WithPhone != 2 || body.Stats.Filtered != 2 {
		t.Fatalf("unexpected stats %+v", body.Stats)
	}
	expectError(t, doRequest(t, env.handler, http.MethodGet, "/v1/analytics?min_rating=abc", nil), 400, CodeValidation)
}

func TestSubAreas(t *testing.T) {
	env := newTestEnv(t, &fakeLookup{})
	expectError(t, doRequest(t, env.handler, http.MethodGet, "/v1/subareas", nil), 400, CodeValidation)
	rr := doRequest(t, env.handler, http.MethodGet, "/v1/subareas?location=District+1", nil)
	body := decode[struct {
		Location string   `json:"location"`
		SubAreas []string `json:"subareas"`
	}](t, rr)
	if body.Location != "District 1" || len(body.SubAreas) != 2 {
		t.Fatalf("unexpected subareas %+v", body)
	}
}

func TestExportAndReports(t *testing.T) {
	env := newTestEnv(t, &fakeLookup{responses: [][]business.Record{{rec("A", 4.6, "1"), rec("B", 3.9, "")}}})
	expectError(t, doRequest(t, env.handler, http.MethodGet, "/v1/export.xlsx", nil), 404, CodeNotFound)
	expectError(t, doRequest(t, env.handler, http.MethodGet, "/v1/report.md", nil), 404, CodeNotFound)

	doRequest(t, env.handler, http.MethodPost, "/v1/search", map[string]any{"industry": "Coffee Shop", "location": "District 1"})

	rr := doRequest(t, env.handler, http.MethodGet, "/v1/export.xlsx?sort=name_asc", nil)
	if rr.Code != 200 {
		t.Fatalf("export status=%d body=%s", rr.Code, rr.Body.String())
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "Coffee_Shop_District_1_data.xlsx") {
		t.Fatalf("Content-Disposition = %q", cd)
	}
	f, err := excelize.OpenReader(bytes.NewReader(rr.Body.Bytes()))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()
	rows, _ := f.GetRows("Business Data")
	if len(rows) != 3 || rows[1][0] != "A" {
		t.Fatalf("unexpected rows %v", rows)
	}

	rr = doRequest(t, env.handler, http.MethodGet, "/v1/report.md?phone=1", nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), "- Filters: has phone") {
		t.Fatalf("markdown report status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, env.handler, http.MethodGet, "/v1/report.html", nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), "<h1>Business Discovery Report</h1>") {
		t.Fatalf("html report status=%d", rr.Code)
	}

	rr = doRequest(t, env.handler, http.MethodGet, "/v1/report.pdf", nil)
	if rr.Code != 200 || rr.Header().Get("Content-Type") != "application/pdf" || !strings.HasPrefix(rr.Body.String(), "%PDF") {
		t.Fatalf("pdf status=%d type=%q", rr.Code, rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(env.pdf.markdown, "# Business Discovery Report") {
		t.Fatal("renderer should receive the markdown report")
	}

	env.pdf.err = errors.New("chrome missing")
	expectError(t, doRequest(t, env.handler, http.MethodGet, "/v1/report.pdf", nil), 500, CodeInternal)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, &fakeLookup{})
	rr := doRequest(t, env.handler, http.MethodGet, "/v1/health", nil)
	body := decode[map[string]any](t, rr)
	if body["ok"] != true || body["model"] != "test-model" || body["state"] != "idle" {
		t.Fatalf("unexpected health %v", body)
	}
}

func TestStaticRoot(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>bizfinder</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	ctrl, err := session.NewController(&fakeLookup{}, store.NewMemoryStore(), session.Config{})
	if err != nil {
		t.Fatal(err)
	}
	h := NewServer(Config{Sessions: ctrl, WebDir: dir})
	rr := doRequest(t, h, http.MethodGet, "/", nil)
	if rr.Code != 200 || !strings.Contains(rr.Body.String(), "bizfinder") {
		t.Fatalf("root status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr := doRequest(t, h, http.MethodGet, "/missing.js", nil); rr.Code != 404 {
		t.Fatalf("missing file status=%d", rr.Code)
	}
}
