package mindmap

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/Denni-Wild/Subs-bot-sub000/errors"
	"github.com/Denni-Wild/Subs-bot-sub000/models"
)

type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatMermaid  Format = "mermaid"
	FormatHTML     Format = "html"
	FormatAll      Format = "all"
)

// ParseFormat accepts a format name; empty selects FormatAll.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatAll, nil
	case FormatMarkdown, FormatMermaid, FormatHTML, FormatAll:
		return f, nil
	default:
		return "", errors.InvalidInput("mindmap.ParseFormat", nil,
			fmt.Sprintf("Unknown mind map format %q (use markdown, mermaid, html or all)", s))
	}
}

// Result holds the renderings requested for one mind map. HTML embeds the
// markdown rendering.
type Result struct {
	Map      *models.MindMap
	Markdown string
	Mermaid  string
	HTML     string
}

func Render(m *models.MindMap, format Format) (*Result, error) {
	r := &Result{Map: m}
	switch format {
	case FormatMarkdown:
		r.Markdown = Markdown(m)
	case FormatMermaid:
		r.Mermaid = Mermaid(m)
	case FormatHTML:
		r.Markdown = Markdown(m)
	default:
		r.Markdown = Markdown(m)
		r.Mermaid = Mermaid(m)
	}
	if format == FormatHTML || format == FormatAll {
		page, err := HTML(r.Markdown)
		if err != nil {
			return nil, err
		}
		r.HTML = page
		if format == FormatHTML {
			r.Markdown = ""
		}
	}
	return r, nil
}

// Markdown renders m as a markmap document.
func Markdown(m *models.MindMap) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", m.MainTopic)
	b.WriteString("*Автоматически сгенерированная карта памяти*\n\n")

	for _, t := range m.Topics {
		if len(t.Ideas) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n", t.Name)
		for _, idea := range t.Ideas {
			fmt.Fprintf(&b, "- %s %s\n", t.Emoji, idea)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n")
	fmt.Fprintf(&b, "**Сгенерировано**: %d основных тем\n", len(m.Topics))
	fmt.Fprintf(&b, "**Всего идей**: %d\n", m.IdeaCount())
	fmt.Fprintf(&b, "**Главная тема**: %s\n", m.MainTopic)
	return b.String()
}

var mermaidEscaper = strings.NewReplacer(
	`"`, "#quot;",
	"(", "#40;",
	")", "#41;",
	"[", "#91;",
	"]", "#93;",
	"{", "#123;",
	"}", "#125;",
	"\n", " ",
)

// Mermaid renders m as a mermaid mindmap diagram.
func Mermaid(m *models.MindMap) string {
	var b strings.Builder
	b.WriteString("mindmap\n")
	fmt.Fprintf(&b, "  root((%s))\n", mermaidEscaper.Replace(m.MainTopic))
	for _, t := range m.Topics {
		if len(t.Ideas) == 0 {
			continue
		}
		fmt.Fprintf(&b, "    %s\n", mermaidEscaper.Replace(t.Name))
		for _, idea := range t.Ideas {
			fmt.Fprintf(&b, "      %s %s\n", t.Emoji, mermaidEscaper.Replace(idea))
		}
	}
	return b.String()
}

var pageTemplate = template.Must(template.New("mindmap").Parse(`<!DOCTYPE html>
<html lang="ru">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>{{.Title}}</title>
<style>
body { margin: 0; font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; background: #f5f6fa; }
header { padding: 16px 24px; background: #4b4f9c; color: #fff; }
header h1 { margin: 0; font-size: 1.4rem; }
#mindmap { display: block; width: 100vw; height: calc(100vh - 64px); }
</style>
<script src="https://cdn.jsdelivr.net/npm/d3@7"></script>
<script src="https://cdn.jsdelivr.net/npm/markmap-lib@0.17"></script>
<script src="https://cdn.jsdelivr.net/npm/markmap-view@0.17"></script>
</head>
<body>
<header><h1>{{.Title}}</h1></header>
<svg id="mindmap"></svg>
<script>
const markdown = {{.Markdown}};
const { Transformer, Markmap } = window.markmap;
const { root } = new Transformer().transform(markdown);
Markmap.create("#mindmap", null, root);
</script>
</body>
</html>
`))

// HTML renders an interactive markmap page for markdown.
func HTML(markdown string) (string, error) {
	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, struct {
		Title    string
		Markdown string
	}{
		Title:    "Mind Map - Subs-bot",
		Markdown: markdown,
	})
	if err != nil {
		return "", fmt.Errorf("render mind map page: %w", err)
	}
	return buf.String(), nil
}
