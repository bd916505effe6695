package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/yuin/goldmark"
	gmext "github.com/yuin/goldmark/extension"
)

// indexFile is the per-directory markdown rendered under the listing.
const indexFile = ".index.md"

var markdown = goldmark.New(
	goldmark.WithExtensions(gmext.Table, gmext.Strikethrough, gmext.TaskList, gmext.Footnote),
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 50rem; margin: 2rem auto; padding: 0 1rem; }
ul.listing { list-style: none; padding: 0; }
ul.listing li { display: flex; gap: 1rem; padding: 0.25rem 0; }
ul.listing .filesize { margin-left: auto; color: #666; }
.payment-request { word-break: break-all; font-family: monospace; background: #f4f4f4; padding: 1rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{.Body}}
</body>
</html>
`))

type listingEntry struct {
	Name string
	Href string
	Size string
	Dir  bool
	Free bool
}

var listingTemplate = template.Must(template.New("listing").Parse(`<ul class="listing">
{{- range .Entries}}
<li><a class="view" href="{{.Href}}">{{.Name}}</a>
{{- if not .Dir}}<span class="filesize">{{.Size}}</span>{{end}}
{{- if .Free}} <a download href="{{.Href}}">&#8595;</a>{{end}}</li>
{{- end}}
</ul>
{{if .Index}}<div class="index">{{.Index}}</div>{{end}}`))

var invoiceTemplate = template.Must(template.New("invoice").Parse(`<div class="invoice">
<p>Lightning payment of <strong>{{.AmountSats}} sat</strong> required to access
<span class="filename">{{.Filename}}</span>:</p>
<div class="payment-request">{{.PaymentRequest}}</div>
<p>
<a class="payment-link" href="lightning:{{.PaymentRequest}}">Open invoice in wallet</a> &middot;
<a class="reload-link" href="{{.AccessURL}}">Access file</a>
</p>
<ol>
<li>Pay the invoice above with your Lightning wallet.</li>
<li>Follow the &quot;Access file&quot; link or reload the page.</li>
</ol>
</div>`))

func (h *Handler) serveListing(w http.ResponseWriter, r *http.Request, dir string) {
	entries, err := h.storage.ReadDir(r.Context(), dir)
	if err != nil {
		h.log.Error("read dir failed", "path", dir, "err", err)
		requestsTotal.WithLabelValues("internal_error").Inc()
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	var rows []listingEntry
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name, ".") {
			continue
		}
		row := listingEntry{
			Name: entry.Name,
			Href: url.PathEscape(entry.Name),
			Dir:  entry.Dir,
		}
		if entry.Dir {
			row.Name += "/"
			row.Href += "/"
		} else {
			row.Size = humanize.IBytes(uint64(entry.Size))
			row.Free = h.isFree(r, path.Join(dir, entry.Name))
		}
		rows = append(rows, row)
	}

	index, err := h.renderIndex(r, dir)
	if err != nil {
		h.log.Warn("index markdown render failed", "path", dir, "err", err)
	}

	var body bytes.Buffer
	if err := listingTemplate.Execute(&body, struct {
		Entries []listingEntry
		Index   template.HTML
	}{rows, index}); err != nil {
		h.log.Error("listing render failed", "path", dir, "err", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	requestsTotal.WithLabelValues("listing").Inc()
	title := "/" + strings.TrimSuffix(dir, "/")
	if dir == "." {
		title = "/"
	}
	writePage(w, http.StatusOK, title, template.HTML(body.String()))
}

// isFree decides whether a listing row gets a direct download link. On a
// broken declaration the file is presented as paid; the error will surface
// properly when the file itself is requested.
func (h *Handler) isFree(r *http.Request, p string) bool {
	acc, err := h.resolver.Resolve(r.Context(), p)
	if err != nil {
		return false
	}
	return !acc.Paid
}

func (h *Handler) renderIndex(r *http.Request, dir string) (template.HTML, error) {
	raw, err := h.storage.ReadFile(r.Context(), path.Join(dir, indexFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := markdown.Convert(raw, &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

type invoicePage struct {
	Filename       string
	AmountSats     int64
	PaymentRequest string
	AccessURL      string
}

func writeInvoicePage(w http.ResponseWriter, page invoicePage) {
	var body bytes.Buffer
	if err := invoiceTemplate.Execute(&body, page); err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writePage(w, http.StatusPaymentRequired, "Invoice for "+page.Filename, template.HTML(body.String()))
}

func writePage(w http.ResponseWriter, status int, title string, body template.HTML) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = pageTemplate.Execute(w, struct {
		Title string
		Body  template.HTML
	}{title, body})
}

func writeJSON(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
}
