package templates

import (
	"context"
	"io"

	"github.com/a-h/templ"
)

// LicenseMessage is the content of a license lifecycle email.
type LicenseMessage struct {
	Subject   string
	Heading   string
	Body      string
	Plan      string
	ExpiresAt string // preformatted; omitted when empty
	ActionURL string // omitted when empty
	Action    string
}

// LicenseNotice lays out a LicenseMessage as a single-column email.
// Every field is HTML-escaped.
func LicenseNotice(m LicenseMessage) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		p := printer{w: w}
		p.raw(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>`)
		p.text(m.Subject)
		p.raw(`</title></head><body style="margin:0;padding:24px;background:#f5f5f5;font-family:Helvetica,Arial,sans-serif;color:#222">`)
		p.raw(`<table role="presentation" width="100%" style="max-width:560px;margin:0 auto;background:#fff;border-radius:6px"><tr><td style="padding:32px">`)
		p.raw(`<h1 style="font-size:20px;margin:0 0 16px">`)
		p.text(m.Heading)
		p.raw(`</h1><p style="font-size:15px;line-height:1.5;margin:0 0 16px">`)
		p.text(m.Body)
		p.raw(`</p>`)
		if m.Plan != "" {
			p.raw(`<p style="font-size:14px;margin:0 0 4px"><strong>Plan:</strong> `)
			p.text(m.Plan)
			p.raw(`</p>`)
		}
		if m.ExpiresAt != "" {
			p.raw(`<p style="font-size:14px;margin:0 0 16px"><strong>Valid until:</strong> `)
			p.text(m.ExpiresAt)
			p.raw(`</p>`)
		}
		if m.ActionURL != "" {
			p.raw(`<p style="margin:24px 0 0"><a href="`)
			p.text(string(templ.URL(m.ActionURL)))
			p.raw(`" style="display:inline-block;padding:10px 18px;background:#2457f5;color:#fff;text-decoration:none;border-radius:4px">`)
			p.text(cmpOr(m.Action, "Open account"))
			p.raw(`</a></p>`)
		}
		p.raw(`</td></tr></table></body></html>`)
		return p.err
	})
}

// printer keeps the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) raw(s string) {
	if p.err == nil {
		_, p.err = io.WriteString(p.w, s)
	}
}

func (p *printer) text(s string) {
	p.raw(templ.EscapeString(s))
}

func cmpOr(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
