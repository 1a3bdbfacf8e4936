package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"beacon/internal/project"
)

// maxDisplayedItems caps how many updates a digest shows. The watermark still
// advances past everything; the email just links to the timeline for the rest.
const maxDisplayedItems = 10

// Renderer builds the four outbound message kinds. It is stateless: data in,
// subject/html/text out.
type Renderer struct {
	BaseURL string
}

type renderItem struct {
	Body      string
	CreatedAt time.Time
	Images    []string
	LinkURL   string
	LinkTitle string
}

type renderData struct {
	ProjectName    string
	BrandColor     string
	LogoURL        string
	TimelineURL    string
	UnsubscribeURL string
	Items          []renderItem
	Hidden         int
	RangeLabel     string
}

var htmlTmpl = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html><body style="margin:0;font-family:sans-serif;background:#f4f4f5">
<div style="max-width:600px;margin:0 auto;padding:24px">
<div style="background:{{.BrandColor}};padding:16px;border-radius:8px 8px 0 0">
{{if .LogoURL}}<img src="{{.LogoURL}}" alt="" style="max-height:40px">{{end}}
<h1 style="color:#fff;font-size:18px;margin:8px 0 0">{{.ProjectName}}</h1>
{{if .RangeLabel}}<p style="color:#fff;opacity:.8;margin:4px 0 0;font-size:13px">{{.RangeLabel}}</p>{{end}}
</div>
<div style="background:#fff;padding:16px;border-radius:0 0 8px 8px">
{{range .Items}}
<div style="border-bottom:1px solid #eee;padding:12px 0">
<p style="margin:0;white-space:pre-wrap">{{.Body}}</p>
{{range .Images}}<img src="{{.}}" alt="" style="max-width:100%;margin-top:8px;border-radius:4px">{{end}}
{{if .LinkURL}}<p style="margin:8px 0 0"><a href="{{.LinkURL}}">{{if .LinkTitle}}{{.LinkTitle}}{{else}}{{.LinkURL}}{{end}}</a></p>{{end}}
<p style="margin:8px 0 0;color:#888;font-size:12px">{{.CreatedAt.Format "Jan 2, 2006 15:04 MST"}}</p>
</div>
{{end}}
{{if gt .Hidden 0}}<p style="color:#555">…and {{.Hidden}} more on the timeline.</p>{{end}}
<p style="margin-top:16px"><a href="{{.TimelineURL}}" style="color:{{.BrandColor}}">View the full timeline</a></p>
</div>
<p style="color:#999;font-size:12px;text-align:center">
<a href="{{.UnsubscribeURL}}" style="color:#999">Unsubscribe</a>
</p>
</div>
</body></html>`))

func (r *Renderer) data(p project.Project, updates []project.UpdateWithMedia) renderData {
	d := renderData{
		ProjectName:    p.Name,
		BrandColor:     p.BrandColor,
		LogoURL:        p.LogoURL,
		TimelineURL:    fmt.Sprintf("%s/p/%s", r.BaseURL, p.PublicToken),
		UnsubscribeURL: fmt.Sprintf("%s/p/%s/unsubscribe", r.BaseURL, p.PublicToken),
	}
	for i, u := range updates {
		if i >= maxDisplayedItems {
			d.Hidden = len(updates) - maxDisplayedItems
			break
		}
		item := renderItem{Body: u.Update.Body, CreatedAt: u.Update.CreatedAt}
		for _, img := range u.Images {
			item.Images = append(item.Images, img.URL)
		}
		if u.Link != nil {
			item.LinkURL = u.Link.URL
			item.LinkTitle = u.Link.Title
		}
		d.Items = append(d.Items, item)
	}
	return d
}

func (r *Renderer) render(subject string, d renderData) (Rendered, error) {
	var buf bytes.Buffer
	if err := htmlTmpl.Execute(&buf, d); err != nil {
		return Rendered{}, err
	}
	return Rendered{Subject: subject, HTML: buf.String(), Text: renderText(d)}, nil
}

func renderText(d renderData) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", d.ProjectName)
	if d.RangeLabel != "" {
		fmt.Fprintf(&b, "%s\n", d.RangeLabel)
	}
	b.WriteString("\n")
	for _, it := range d.Items {
		fmt.Fprintf(&b, "- %s\n", it.Body)
		if it.LinkURL != "" {
			fmt.Fprintf(&b, "  %s\n", it.LinkURL)
		}
		fmt.Fprintf(&b, "  %s\n\n", it.CreatedAt.Format("Jan 2, 2006 15:04 MST"))
	}
	if d.Hidden > 0 {
		fmt.Fprintf(&b, "...and %d more on the timeline.\n\n", d.Hidden)
	}
	fmt.Fprintf(&b, "Timeline: %s\nUnsubscribe: %s\n", d.TimelineURL, d.UnsubscribeURL)
	return b.String()
}

func (r *Renderer) InstantUpdate(p project.Project, u project.UpdateWithMedia) (Rendered, error) {
	d := r.data(p, []project.UpdateWithMedia{u})
	return r.render(fmt.Sprintf("New update from %s", p.Name), d)
}

func (r *Renderer) DailyDigest(p project.Project, updates []project.UpdateWithMedia) (Rendered, error) {
	d := r.data(p, updates)
	return r.render(fmt.Sprintf("Daily digest: %s", p.Name), d)
}

// WeeklyDigest takes a display window for the header label only; the update
// set is whatever the caller's watermark produced, which can span further
// back than seven days.
func (r *Renderer) WeeklyDigest(p project.Project, updates []project.UpdateWithMedia, from, to time.Time) (Rendered, error) {
	d := r.data(p, updates)
	d.RangeLabel = fmt.Sprintf("%s to %s", from.Format("Jan 2"), to.Format("Jan 2, 2006"))
	return r.render(fmt.Sprintf("Weekly digest: %s", p.Name), d)
}

func (r *Renderer) SubscriptionConfirmed(p project.Project, frequency string) (Rendered, error) {
	d := r.data(p, nil)
	d.Items = []renderItem{{
		Body:      fmt.Sprintf("You are subscribed to %s updates for %s.", frequency, p.Name),
		CreatedAt: time.Now(),
	}}
	return r.render(fmt.Sprintf("Subscribed to %s", p.Name), d)
}
