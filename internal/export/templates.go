package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time, layout string) string {
			return t.Format(layout)
		},
	}

	templateContent, err := templateFS.ReadFile("templates/report.html")
	if err != nil {
		// Fallback to built-in template if file not found
		reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(string(templateContent)))
}

// TemplateData holds data for report template rendering
type TemplateData struct {
	Name        string
	Subtitle    string
	Description string
	GeneratedAt time.Time
	Members     []string
	Tasks       []ReportTask
	Messages    []ReportMessage
	OpenCount   int
	DoneCount   int
}

// RenderReportHTML renders the report template with provided data
func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Name}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    table { border-collapse: collapse; width: 100%; }
    th, td { border: 1px solid #ccc; padding: 0.4rem 0.6rem; text-align: left; }
    .done { color: #2a7a2a; }
    .message { background: #f5f5f5; padding: 1rem; margin: 1rem 0; border-left: 3px solid #333; }
  </style>
</head>
<body>
  <h1>{{.Name}}</h1>
  {{if .Subtitle}}<p>{{.Subtitle}}</p>{{end}}
  <div class="meta">Generated {{formatDate .GeneratedAt "Jan 2, 2006"}} | {{.OpenCount}} open / {{.DoneCount}} done</div>
  {{if .Description}}<p>{{.Description}}</p>{{end}}
  {{if .Members}}<p><strong>Team:</strong> {{range $i, $m := .Members}}{{if $i}}, {{end}}{{$m}}{{end}}</p>{{end}}
  {{if .Tasks}}
  <h2>Tasks</h2>
  <table>
    <tr><th>Task</th><th>Assignee</th><th>Priority</th><th>Due</th><th>Status</th></tr>
    {{range .Tasks}}
    <tr>
      <td>{{.Name}}</td>
      <td>{{.Assignee}}</td>
      <td>{{.Priority}}</td>
      <td>{{formatDate .Date "2006-01-02"}}</td>
      <td>{{if .Done}}<span class="done">done</span>{{else}}open{{end}}</td>
    </tr>
    {{end}}
  </table>
  {{end}}
  {{if .Messages}}
  <h2>Recent messages</h2>
  {{range .Messages}}<div class="message"><strong>{{.Author}}</strong> | {{formatDate .Date "Jan 2, 2006 15:04"}}<br>{{.Content}}</div>{{end}}
  {{end}}
</body>
</html>`
