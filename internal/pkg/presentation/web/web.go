//Package web renders the operator pages from embedded templates
package web

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
	"strconv"
	"time"

	"github.com/tahought/DisasterSoundManager/internal/pkg/dashboard"
	"github.com/tahought/DisasterSoundManager/internal/pkg/infrastructure/repositories/models"
)

//go:embed templates/*.html
var templateFiles embed.FS

//go:embed static
var staticFiles embed.FS

//Dashboard tabs
const (
	TabOverview = "overview"
	TabMap      = "map"
	TabSettings = "settings"
)

//Pages holds the parsed page templates
type Pages struct {
	templates *template.Template
}

type loginPage struct {
	Email   string
	Message string
}

type dashboardPage struct {
	Tab       string
	Tabs      []string
	Incidents []models.Incident
	Units     []models.Unit
	Buckets   []dashboard.Bucket
	Presets   []models.Unit
	Types     []string

	//BucketTotal scales the chart meters, the buckets are counted from a larger sample than the feed holds
	BucketTotal int
}

//NewPages parses the embedded templates
func NewPages() (*Pages, error) {
	funcs := template.FuncMap{
		"since": func(t time.Time) string {
			return time.Since(t).Round(time.Second).String()
		},
		"percent": func(f float64) string {
			return strconv.FormatFloat(f*100, 'f', 0, 64) + "%"
		},
		"lowBattery": func(u models.Unit) bool { return u.HasLowBattery() },
		"online":     func(u models.Unit) bool { return u.IsOnline() },
	}

	templates, err := template.New("pages").Funcs(funcs).ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &Pages{templates: templates}, nil
}

//Static returns the files served under /static/
func Static() fs.FS {
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

//Login renders the sign in form with an optional error message
func (p *Pages) Login(w io.Writer, email, message string) error {
	return p.templates.ExecuteTemplate(w, "login.html", loginPage{Email: email, Message: message})
}

//Dashboard renders the tab named tab. Unknown tabs fall back to the overview.
func (p *Pages) Dashboard(w io.Writer, tab string, views *dashboard.Dashboard) error {
	page := dashboardPage{
		Tab:     NormalizeTab(tab),
		Tabs:    []string{TabOverview, TabMap, TabSettings},
		Presets: models.PresetUnits(),
		Types:   models.KnownIncidentTypes,
	}

	if views != nil {
		page.Incidents = views.Feed.Snapshot()
		page.Units = views.Units.Snapshot()
		page.Buckets = views.Chart.Buckets()
		page.BucketTotal = bucketTotal(page.Buckets)
	}

	return p.templates.ExecuteTemplate(w, "dashboard.html", page)
}

func bucketTotal(buckets []dashboard.Bucket) int {
	total := 0
	for _, bucket := range buckets {
		total += bucket.Value
	}
	return total
}

//NormalizeTab maps a requested tab to one that exists
func NormalizeTab(tab string) string {
	switch tab {
	case TabMap, TabSettings:
		return tab
	}
	return TabOverview
}
