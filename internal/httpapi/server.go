package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/fs"
	"log"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joelkehle/bizfinder/internal/business"
	"github.com/joelkehle/bizfinder/internal/export"
	"github.com/joelkehle/bizfinder/internal/session"
)

type SubAreaLister interface {
	ListSubAreas(ctx context.Context, location string) []string
}

type Config struct {
	Sessions    *session.Controller
	SubAreas    SubAreaLister
	PDFRenderer export.PDFRenderer
	// WebDir holds the static frontend and an optional style.css for reports.
	WebDir string
	Model  string
	Clock  func() time.Time
}

type Server struct {
	sessions    *session.Controller
	subAreas    SubAreaLister
	pdfRenderer export.PDFRenderer
	webDir      string
	model       string
	now         func() time.Time
}

func NewServer(cfg Config) http.Handler {
	s := &Server{
		sessions:    cfg.Sessions,
		subAreas:    cfg.SubAreas,
		pdfRenderer: cfg.PDFRenderer,
		webDir:      cfg.WebDir,
		model:       cfg.Model,
		now:         cfg.Clock,
	}
	if s.now == nil {
		s.now = time.Now
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", s.handleHealth)
	mux.HandleFunc("/v1/session", s.handleSession)
	mux.HandleFunc("/v1/session/inputs", s.handleInputs)
	mux.HandleFunc("/v1/session/save", s.handleSave)
	mux.HandleFunc("/v1/session/clear", s.handleClear)
	mux.HandleFunc("/v1/settings", s.handleSettings)
	mux.HandleFunc("/v1/search", s.handleSearch)
	mux.HandleFunc("/v1/search/more", s.handleLoadMore)
	mux.HandleFunc("/v1/history", s.handleHistory)
	mux.HandleFunc("/v1/history/", s.handleHistoryItem)
	mux.HandleFunc("/v1/analytics", s.handleAnalytics)
	mux.HandleFunc("/v1/subareas", s.handleSubAreas)
	mux.HandleFunc("/v1/export.xlsx", s.handleExportXLSX)
	mux.HandleFunc("/v1/report.md", s.handleReportMarkdown)
	mux.HandleFunc("/v1/report.html", s.handleReportHTML)
	mux.HandleFunc("/v1/report.pdf", s.handleReportPDF)
	mux.HandleFunc("/", s.handleRoot)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeAPIError(w http.ResponseWriter, err error) {
	ae := toAPIError(err)
	writeJSON(w, ae.Status, map[string]any{
		"ok": false,
		"error": map[string]any{
			"code":      ae.Code,
			"message":   ae.Message,
			"transient": ae.Transient,
		},
	})
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return []byte("{}"), nil
	}
	blob, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(blob)) == 0 {
		blob = []byte("{}")
	}
	return blob, nil
}

func decodeBody(r *http.Request, dst any) error {
	blob, err := readBody(r)
	if err != nil {
		return newValidationJSONError(err)
	}
	if err := json.Unmarshal(blob, dst); err != nil {
		return newValidationJSONError(err)
	}
	return nil
}

func methodOnly(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseFilter(r *http.Request) (business.Filter, error) {
	q := r.URL.Query()
	f := business.Filter{
		RequirePhone:   parseBool(q.Get("phone")),
		RequireWebsite: parseBool(q.Get("website")),
	}
	if raw := strings.TrimSpace(q.Get("min_rating")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 5 {
			return f, newError(CodeValidation, "min_rating must be a number between 0 and 5", false)
		}
		f.MinRating = v
	}
	return f, nil
}

type sessionView struct {
	Industry    string            `json:"industry"`
	Location    string            `json:"location"`
	State       session.State     `json:"state"`
	HistoryID   string            `json:"history_id,omitempty"`
	Error       string            `json:"error,omitempty"`
	HasSearched bool              `json:"has_searched"`
	ViewMode    session.ViewMode  `json:"view_mode"`
	Sort        string            `json:"sort"`
	Count       int               `json:"count"`
	Results     []business.Record `json:"results"`
}

func newSessionView(snap session.Session, opt business.SortOption) sessionView {
	results := business.Sorted(snap.Results, opt)
	if results == nil {
		results = []business.Record{}
	}
	return sessionView{
		Industry:    snap.Industry,
		Location:    snap.Location,
		State:       snap.State(),
		HistoryID:   snap.HistoryID,
		Error:       snap.Error,
		HasSearched: snap.HasSearched,
		ViewMode:    snap.ViewMode,
		Sort:        string(opt),
		Count:       len(results),
		Results:     results,
	}
}

func (s *Server) view() sessionView {
	return newSessionView(s.sessions.Snapshot(), business.SortRatingDesc)
}

type historySummary struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Industry  string `json:"industry"`
	Location  string `json:"location"`
	Count     int    `json:"count"`
}

func summarize(item business.HistoryItem) historySummary {
	return historySummary{
		ID:        item.ID,
		Timestamp: item.Timestamp,
		Industry:  item.Industry,
		Location:  item.Location,
		Count:     item.Count,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	snap := s.sessions.Snapshot()
	writeJSON(w, 200, map[string]any{
		"ok":      true,
		"model":   s.model,
		"state":   snap.State(),
		"results": len(snap.Results),
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	opt, err := business.ParseSortOption(r.URL.Query().Get("sort"))
	if err != nil {
		writeAPIError(w, newError(CodeValidation, err.Error(), false))
		return
	}
	writeJSON(w, 200, newSessionView(s.sessions.Snapshot(), opt))
}

func (s *Server) handleInputs(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPut) {
		return
	}
	var req struct {
		Industry string `json:"industry"`
		Location string `json:"location"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeAPIError(w, err)
		return
	}
	s.sessions.SetInputs(req.Industry, req.Location)
	writeJSON(w, 200, s.view())
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPut) {
		return
	}
	var req struct {
		ViewMode string `json:"view_mode"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeAPIError(w, err)
		return
	}
	if err := s.sessions.SetViewMode(session.ViewMode(req.ViewMode)); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true, "view_mode": req.ViewMode})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Industry *string `json:"industry"`
		Location *string `json:"location"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeAPIError(w, err)
		return
	}
	snap := s.sessions.Snapshot()
	industry, location := snap.Industry, snap.Location
	if req.Industry != nil {
		industry = *req.Industry
	}
	if req.Location != nil {
		location = *req.Location
	}
	// a started lookup runs to completion even if the client goes away
	if err := s.sessions.Search(context.WithoutCancel(r.Context()), industry, location); err != nil {
		writeAPIError(w, err)
		return
	}
	writeJSON(w, 200, s.view())
}

func (s *Server) handleLoadMore(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	res, err := s.sessions.LoadMore(context.WithoutCancel(r.Context()))
	if err != nil {
		writeAPIError(w, err)
		return
	}
	payload := map[string]any{
		"ok":      true,
		"added":   res.Added,
		"total":   res.Total,
		"session": s.view(),
	}
	if res.Notice != session.NoticeNone {
		payload["notice"] = res.Notice
		payload["message"] = res.Notice.Message()
	}
	writeJSON(w, 200, payload)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	item, saved := s.sessions.SaveSession()
	payload := map[string]any{"ok": true, "saved": saved}
	if saved {
		payload["item"] = summarize(item)
	}
	writeJSON(w, 200, payload)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodPost) {
		return
	}
	s.sessions.Clear()
	writeJSON(w, 200, s.view())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		items := s.sessions.History()
		out := make([]historySummary, 0, len(items))
		for _, item := range items {
			out = append(out, summarize(item))
		}
		writeJSON(w, 200, map[string]any{"history": out})
	case http.MethodDelete:
		if err := s.sessions.ClearHistory(parseBool(r.URL.Query().Get("confirm"))); err != nil {
			writeAPIError(w, err)
			return
		}
		writeJSON(w, 200, map[string]any{"ok": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleHistoryItem serves /v1/history/{id} and /v1/history/{id}/restore.
func (s *Server) handleHistoryItem(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/history/"), "/")
	id, action, _ := strings.Cut(path, "/")
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch {
	case action == "restore":
		if !methodOnly(w, r, http.MethodPost) {
			return
		}
		restored, err := s.sessions.Restore(id)
		if err != nil {
			writeAPIError(w, err)
			return
		}
		writeJSON(w, 200, map[string]any{"ok": true, "restored": restored, "session": s.view()})
	case action != "":
		w.WriteHeader(http.StatusNotFound)
	case r.Method == http.MethodGet:
		for _, item := range s.sessions.History() {
			if item.ID == id {
				writeJSON(w, 200, item)
				return
			}
		}
		writeAPIError(w, session.ErrHistoryNotFound)
	case r.Method == http.MethodDelete:
		if err := s.sessions.DeleteHistory(id); err != nil {
			writeAPIError(w, err)
			return
		}
		writeJSON(w, 200, map[string]any{"ok": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	snap := s.sessions.Snapshot()
	writeJSON(w, 200, map[string]any{
		"filter": f,
		"stats":  business.Analyze(snap.Results, f),
	})
}

func (s *Server) handleSubAreas(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	if s.subAreas == nil {
		writeAPIError(w, newError(CodeUnavailable, "sub-area suggestions unavailable", false))
		return
	}
	location := strings.TrimSpace(r.URL.Query().Get("location"))
	if location == "" {
		location = strings.TrimSpace(s.sessions.Snapshot().Location)
	}
	if location == "" {
		writeAPIError(w, newError(CodeValidation, "location is required", false))
		return
	}
	areas := s.subAreas.ListSubAreas(r.Context(), location)
	if areas == nil {
		areas = []string{}
	}
	writeJSON(w, 200, map[string]any{"location": location, "subareas": areas})
}

// exportLabels names downloads after the current inputs, falling back to
// the labels of the search the results came from.
func exportLabels(snap session.Session) (string, string) {
	industry, location := snap.Industry, snap.Location
	if strings.TrimSpace(industry) == "" {
		industry = snap.QueryIndustry
	}
	if strings.TrimSpace(location) == "" {
		location = snap.QueryLocation
	}
	return industry, location
}

func setAttachment(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	snap := s.sessions.Snapshot()
	records := snap.Results
	if raw := r.URL.Query().Get("sort"); raw != "" {
		opt, err := business.ParseSortOption(raw)
		if err != nil {
			writeAPIError(w, newError(CodeValidation, err.Error(), false))
			return
		}
		records = business.Sorted(records, opt)
	}
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, records); err != nil {
		writeAPIError(w, err)
		return
	}
	industry, location := exportLabels(snap)
	setAttachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", export.FileName(industry, location))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) buildReport(r *http.Request) (string, string, error) {
	f, err := parseFilter(r)
	if err != nil {
		return "", "", err
	}
	snap := s.sessions.Snapshot()
	if len(snap.Results) == 0 {
		return "", "", export.ErrNoRecords
	}
	industry, location := exportLabels(snap)
	md := export.BuildReportMarkdown(export.ReportInput{
		Industry:    industry,
		Location:    location,
		Records:     snap.Results,
		Filter:      f,
		GeneratedAt: s.now(),
	})
	base := strings.TrimSuffix(export.FileName(industry, location), "_data.xlsx") + "_report"
	return md, base, nil
}

func (s *Server) handleReportMarkdown(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	md, _, err := s.buildReport(r)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, md)
}

func (s *Server) handleReportHTML(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	md, _, err := s.buildReport(r)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	doc, err := export.RenderHTML(md, s.reportCSS())
	if err != nil {
		log.Printf("httpapi render_html_failed err=%v", err)
		writeAPIError(w, newError(CodeInternal, "failed to render report", false))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, doc)
}

func (s *Server) reportCSS() string {
	if s.webDir == "" {
		return ""
	}
	b, err := os.ReadFile(filepath.Join(s.webDir, "style.css"))
	if err != nil {
		return ""
	}
	return string(b)
}

func (s *Server) handleReportPDF(w http.ResponseWriter, r *http.Request) {
	if !methodOnly(w, r, http.MethodGet) {
		return
	}
	if s.pdfRenderer == nil {
		writeAPIError(w, newError(CodeUnavailable, "pdf renderer unavailable", false))
		return
	}
	md, base, err := s.buildReport(r)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	pdf, err := s.pdfRenderer.Render(r.Context(), md)
	if err != nil {
		log.Printf("httpapi render_pdf_failed err=%v", err)
		writeAPIError(w, newError(CodeInternal, "failed to render pdf", true))
		return
	}
	setAttachment(w, "application/pdf", base+".pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if s.webDir == "" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	if r.URL.Path == "/" || r.URL.Path == "/index.html" {
		http.ServeFile(w, r, filepath.Join(s.webDir, "index.html"))
		return
	}
	clean := strings.TrimPrefix(filepath.Clean(r.URL.Path), "/")
	if _, err := fs.Stat(os.DirFS(s.webDir), clean); err == nil {
		http.ServeFile(w, r, filepath.Join(s.webDir, clean))
		return
	}
	http.NotFound(w, r)
}
