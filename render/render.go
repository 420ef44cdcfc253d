// ABOUTME: Renders a finalized Message as json, yaml, html, or styled terminal text.
// ABOUTME: HTML output renders the message text as markdown through goldmark.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/yuin/goldmark"
	"gopkg.in/yaml.v3"

	"github.com/2389-research/stitch/llm"
)

// Supported output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatHTML = "html"
	FormatText = "text"
)

// Func renders a message in a given format.
type Func func(msg *llm.Message, format string) ([]byte, error)

// ContentType returns the HTTP content type for format.
func ContentType(format string) string {
	switch format {
	case FormatJSON:
		return "application/json"
	case FormatYAML:
		return "application/yaml"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Message renders msg in format.
func Message(msg *llm.Message, format string) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("render: nil message")
	}
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(msg, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case FormatYAML:
		return yaml.Marshal(msg)
	case FormatHTML:
		return toHTML(msg)
	case FormatText, "":
		return []byte(toText(msg)), nil
	default:
		return nil, fmt.Errorf("render: unknown format %q", format)
	}
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(10)
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	toolStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("75")).Bold(true)
	argsStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).PaddingLeft(2)
	emptyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)
	finishStyles = map[llm.FinishReason]lipgloss.Style{
		llm.FinishStop:          lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		llm.FinishToolExecution: lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
		llm.FinishLength:        lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		llm.FinishContentFilter: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
)

func field(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

func toText(msg *llm.Message) string {
	var b strings.Builder
	title := "message"
	if msg.ID != "" {
		title = msg.ID
	}
	b.WriteString(titleStyle.Render(title) + "\n")
	if msg.Model != "" {
		b.WriteString(field("model", msg.Model) + "\n")
	}

	finish, ok := finishStyles[msg.FinishReason]
	if !ok {
		finish = valueStyle
	}
	b.WriteString(labelStyle.Render("finish") + finish.Render(msg.FinishReason.String()) + "\n")
	b.WriteString(field("usage", fmt.Sprintf("%d prompt + %d completion = %d",
		msg.Usage.PromptTokens, msg.Usage.CompletionTokens, msg.Usage.TotalTokens)) + "\n")

	if msg.IsEmpty() {
		b.WriteString(emptyStyle.Render("(empty response)") + "\n")
		return b.String()
	}
	if msg.HasText() {
		b.WriteString("\n" + msg.Text + "\n")
	}
	for _, tc := range msg.ToolCalls {
		b.WriteString("\n" + toolStyle.Render(tc.Name) + " " + labelStyle.UnsetWidth().Render(tc.ID) + "\n")
		if tc.Arguments != "" {
			b.WriteString(argsStyle.Render(prettyArgs(tc.Arguments)) + "\n")
		}
	}
	return b.String()
}

// prettyArgs indents JSON arguments, leaving unparsable input verbatim.
func prettyArgs(args string) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(args), "", "  "); err != nil {
		return args
	}
	return buf.String()
}

var htmlTemplate = template.Must(template.New("message").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{if .Msg.ID}}{{.Msg.ID}}{{else}}message{{end}}</title></head>
<body>
<article class="message">
<header>
<dl>
{{- if .Msg.Model}}<dt>model</dt><dd>{{.Msg.Model}}</dd>{{end}}
<dt>finish</dt><dd class="finish">{{.Msg.FinishReason}}</dd>
<dt>usage</dt><dd>{{.Msg.Usage.PromptTokens}} prompt + {{.Msg.Usage.CompletionTokens}} completion = {{.Msg.Usage.TotalTokens}}</dd>
</dl>
</header>
{{- if .Body}}
<section class="text">
{{.Body}}
</section>
{{- end}}
{{- range .Msg.ToolCalls}}
<section class="tool-call" id="{{.ID}}">
<h3>{{.Name}}</h3>
<pre><code>{{.Arguments}}</code></pre>
</section>
{{- end}}
{{- if .Msg.IsEmpty}}
<p class="empty">(empty response)</p>
{{- end}}
</article>
</body>
</html>
`))

func toHTML(msg *llm.Message) ([]byte, error) {
	var body template.HTML
	if msg.HasText() {
		body = markdownToHTML(msg.Text)
	}
	var buf bytes.Buffer
	err := htmlTemplate.Execute(&buf, struct {
		Msg  *llm.Message
		Body template.HTML
	}{msg, body})
	if err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), nil
}

// markdownToHTML converts markdown to HTML with goldmark. Raw HTML in the
// input is omitted by goldmark's default renderer.
func markdownToHTML(input string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.New().Convert([]byte(input), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(input))
	}
	return template.HTML(buf.String())
}
