package web

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/ecoagris/portal/internal/auth"
	"github.com/ecoagris/portal/internal/models"
	"github.com/ecoagris/portal/internal/store"
	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/zerolog/log"
)

//go:embed templates/*.html
var templateFS embed.FS

// Pages renders the HTML pages and serves dataset files.
type Pages struct {
	pages    map[string]*template.Template
	profiles store.ProfileStore
	dataDir  string
}

// New parses the embedded templates. dataDir may be empty, in which case
// no datasets are served.
func New(profiles store.ProfileStore, dataDir string) (*Pages, error) {
	if profiles == nil {
		return nil, errors.New("profile store is required")
	}

	pages := make(map[string]*template.Template)
	for _, name := range []string{"home", "login", "dashboard"} {
		tmpl, err := template.ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", name, err)
		}
		pages[name] = tmpl
	}

	if dataDir != "" {
		info, err := os.Stat(dataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open data directory: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("data path %s is not a directory", dataDir)
		}
	}

	return &Pages{pages: pages, profiles: profiles, dataDir: dataDir}, nil
}

type pageData struct {
	Title    string
	Admin    *auth.Principal
	Profile  *models.Profile
	Error    string
	Datasets []string
}

// Home serves the public landing page at GET /.
func (p *Pages) Home(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	p.render(w, "home", pageData{Title: "Home", Datasets: p.datasets()})
}

// Login serves the login page at GET /admin/login. It renders whatever
// cookie the browser holds.
func (p *Pages) Login(w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: "Sign in"}
	if code := r.URL.Query().Get("error"); code != "" {
		data.Error = auth.Kind(code).Message()
	}

	p.render(w, "login", data)
}

// Dashboard serves the admin landing page. It must be mounted behind the gate.
func (p *Pages) Dashboard(w http.ResponseWriter, r *http.Request) {
	principal := auth.PrincipalFromContext(r.Context())
	if principal == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	data := pageData{Title: "Admin dashboard", Admin: principal}

	profile, err := p.profiles.Get(r.Context(), principal.UID)
	switch {
	case err == nil:
		data.Profile = profile
	case errors.Is(err, store.ErrProfileNotFound):
	default:
		log.Warn().Err(err).Str("uid", principal.UID.String()).Msg("Failed to load profile for dashboard")
	}

	p.render(w, "dashboard", data)
}

// Data serves dataset files below /data/ with gzip or zstd compression.
// Directory listings are not served.
func (p *Pages) Data() http.Handler {
	if p.dataDir == "" {
		return http.NotFoundHandler()
	}

	files := http.StripPrefix("/data/", http.FileServer(http.Dir(p.dataDir)))

	return gzhttp.GzipHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=300")
		files.ServeHTTP(w, r)
	}))
}

func (p *Pages) datasets() []string {
	if p.dataDir == "" {
		return nil
	}

	entries, err := os.ReadDir(p.dataDir)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list datasets")
		return nil
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch path.Ext(e.Name()) {
		case ".json", ".xlsx", ".csv":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	return names
}

func (p *Pages) render(w http.ResponseWriter, name string, data pageData) {
	var buf bytes.Buffer
	if err := p.pages[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		log.Error().Err(err).Str("page", name).Msg("Failed to render page")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}
