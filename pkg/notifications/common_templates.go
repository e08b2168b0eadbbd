package notifications

var commonTemplates = map[string]string{
	"default-legacy": `
{{- range $i, $e := . -}}
{{- if $i}}{{- println -}}{{- end -}}
{{- $msg := $e.Message -}}
{{- if eq $msg "Found newer image" -}}
    Found newer image for {{$e.Data.container}}: {{with $e.Data.newest_version}}{{.}}{{else}}unknown{{end}}
{{- else if $e.Data -}}
    {{$msg}} | {{range $k, $v := $e.Data -}}{{$k}}={{$v}} {{- end}}
{{- else -}}
    {{$msg}}
{{- end -}}
{{- end -}}`,

	`default`: `
{{- if .Report -}}
  {{- with .Report -}}
    {{- if ( or .Stale .Failed ) -}}
    {{len .Scanned}} Scanned, {{len .Stale}} Stale, {{len .Unknown}} Unknown, {{len .Failed}} Failed
      {{- range .Stale}}
- {{.Image.Name}} ({{.Image.Repository}}): {{.Version.CurrentVersion}} → {{.Version.LatestVersion}}
      {{- end -}}
      {{- range .Unknown}}
- {{.Image.Name}} ({{.Image.Repository}}): {{.State}}
      {{- end -}}
      {{- range .Failed}}
- {{.Image.Name}} ({{.Image.Repository}}): {{.State}}: {{.Error}}
      {{- end -}}
    {{- end -}}
  {{- end -}}
{{- else -}}
  {{range .Entries -}}{{.Message}}{{"\n"}}{{- end -}}
{{- end -}}`,

	`porcelain.v1.summary-no-log`: `
{{- if .Report -}}
  {{- range .Report.All }}
    {{- .Image.Name}} ({{.Image.Repository}}:{{.Image.Tag}}): {{.State -}}
    {{- with .Version.LatestVersion}} {{.}}{{end}}
    {{- with .Error}} Error: {{.}}{{end}}{{ println }}
  {{- else -}}
    no containers matched filter
  {{- end -}}
{{- end -}}`,

	`json.v1`: `{{ . | ToJSON }}`,
}
