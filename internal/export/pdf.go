package export

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// PDFRenderer turns a markdown report into a PDF document.
type PDFRenderer interface {
	Render(ctx context.Context, markdown string) ([]byte, error)
}

const defaultReportCSS = `body{font-family:"Segoe UI",Roboto,Helvetica,Arial,sans-serif;color:#1f2937;font-size:12px;line-height:1.45;}
h1{font-size:1.6rem;margin:0 0 0.5rem;color:#0f172a;}
h2{font-size:1.15rem;margin:1.2rem 0 0.4rem;border-bottom:1px solid #cbd5e1;padding-bottom:0.2rem;}
a{color:#1d4ed8;text-decoration:none;}
table{width:100%;border-collapse:collapse;font-size:0.78rem;}
th,td{border:1px solid #cbd5e1;padding:0.3rem 0.4rem;text-align:left;vertical-align:top;}
thead th{background:#f1f5f9;font-weight:700;}`

var reFullTableHeading = regexp.MustCompile(`(?i)<h2([^>]*)>\s*All Businesses\s*</h2>`)

// RenderHTML converts a markdown report into a standalone HTML page. css
// replaces the built-in stylesheet when non-empty.
func RenderHTML(markdown, css string) (string, error) {
	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	if strings.TrimSpace(css) == "" {
		css = defaultReportCSS
	}
	return "<!doctype html><html><head><meta charset='utf-8'><title>" + html.EscapeString(reportTitle(markdown)) + "</title>" +
		"<style>" + css + "\n" +
		"html,body,*{-webkit-print-color-adjust:exact !important;print-color-adjust:exact !important;} " +
		`h2[data-page-break-before="true"]{break-before:page;page-break-before:always;} ` +
		"@media print{ @page{size:auto;margin:12mm;} }" +
		"</style></head><body><div class='report-html'>" +
		applyPrintLayoutHooks(content.String()) +
		"</div></body></html>", nil
}

// applyPrintLayoutHooks starts the full listing on a new page.
func applyPrintLayoutHooks(contentHTML string) string {
	return reFullTableHeading.ReplaceAllString(contentHTML, `<h2$1 data-page-break-before="true">All Businesses</h2>`)
}

func reportTitle(markdown string) string {
	for _, line := range strings.Split(markdown, "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return "Business Report"
}

// ChromiumPDFRenderer prints the HTML report with a headless Chromium.
type ChromiumPDFRenderer struct {
	webDir     string
	chromePath string
	timeout    time.Duration
	styleOnce  sync.Once
	styleCSS   string
	styleErr   error
}

// NewChromiumPDFRenderer uses webDir/style.css as the stylesheet when webDir
// is set.
func NewChromiumPDFRenderer(webDir string) *ChromiumPDFRenderer {
	return &ChromiumPDFRenderer{
		webDir:     webDir,
		chromePath: detectChromePath(),
		timeout:    30 * time.Second,
	}
}

func (r *ChromiumPDFRenderer) Render(ctx context.Context, markdown string) ([]byte, error) {
	css, err := r.loadStyleCSS()
	if err != nil {
		return nil, err
	}
	htmlDoc, err := RenderHTML(markdown, css)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, append(chromedp.DefaultExecAllocatorOptions[:], opts...)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var pdf []byte
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(htmlDoc))
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			footer := `<div style="width:100%;text-align:center;font-size:9px;color:#666;">` +
				`Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`
			out, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithLandscape(true).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(`<div></div>`).
				WithFooterTemplate(footer).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithMarginTop(0.5).
				WithMarginBottom(0.75).
				WithMarginLeft(0.45).
				WithMarginRight(0.45).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	); err != nil {
		return nil, fmt.Errorf("print pdf: %w", err)
	}
	return pdf, nil
}

func (r *ChromiumPDFRenderer) loadStyleCSS() (string, error) {
	r.styleOnce.Do(func() {
		if r.webDir == "" {
			return
		}
		b, err := os.ReadFile(filepath.Join(r.webDir, "style.css"))
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		if err != nil {
			r.styleErr = fmt.Errorf("read style.css: %w", err)
			return
		}
		r.styleCSS = string(b)
	})
	return r.styleCSS, r.styleErr
}

func detectChromePath() string {
	candidates := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
