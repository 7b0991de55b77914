package ui

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/varsilias/mpt-chat/internal/chat"
	"github.com/varsilias/mpt-chat/internal/session"
	"github.com/varsilias/mpt-chat/pkg/types"
	"github.com/varsilias/mpt-chat/web"
)

type UI struct {
	log      *slog.Logger
	tpl      *template.Template
	chat     *chat.Controller
	sessions *session.MemoryStore
	md       goldmark.Markdown
	policy   *bluemonday.Policy
}

func New(log *slog.Logger, c *chat.Controller, s *session.MemoryStore) (*UI, error) {
	t, err := template.New("root").ParseFS(web.Templates(), "*.html", "partials/*.html")
	if err != nil {
		return nil, err
	}

	md := goldmark.New(
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
		goldmark.WithExtensions(
			highlighting.NewHighlighting(
				highlighting.WithStyle("dracula"),
				highlighting.WithFormatOptions(
					// inline styles, no stylesheet for the highlighter
					chromahtml.WithLineNumbers(false),
				),
			),
		),
	)

	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").OnElements("code", "pre", "span")
	p.AllowAttrs("style").OnElements("pre", "span")

	return &UI{
		log:      log,
		tpl:      t,
		chat:     c,
		sessions: s,
		md:       md,
		policy:   p,
	}, nil
}

type MsgView struct {
	Role    string
	HTML    template.HTML
	Latency int64
	At      string
}

func (u *UI) mdHTML(src string) template.HTML {
	var buf bytes.Buffer
	if err := u.md.Convert([]byte(src), &buf); err != nil {
		u.log.Warn("markdown convert", "err", err)
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(u.policy.SanitizeBytes(buf.Bytes()))
}

// messages renders completed turns as user/assistant bubble pairs; a
// pending turn shows only its user bubble.
func (u *UI) messages(h types.History) []MsgView {
	out := make([]MsgView, 0, 2*len(h))
	for _, t := range h {
		out = append(out, MsgView{Role: string(types.RoleUser), HTML: u.mdHTML(t.User)})
		if !t.Pending() {
			out = append(out, MsgView{Role: string(types.RoleAssistant), HTML: u.mdHTML(t.Assistant)})
		}
	}
	return out
}

func (u *UI) render(w http.ResponseWriter, name string, data any, status int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := u.tpl.ExecuteTemplate(w, name, data); err != nil {
		u.errTpl(w, err)
	}
}

func (u *UI) errTpl(w http.ResponseWriter, err error) {
	u.log.Error("template execute", "err", err)
	_, _ = w.Write([]byte("<pre>template error: " + template.HTMLEscapeString(err.Error()) + "</pre>"))
}
