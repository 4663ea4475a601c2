package api

import (
	"html/template"
	"net/http"
)

// page is shown after checkout when no frontend URL is configured.
var page = template.Must(template.New("cb").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8" />
<meta name="viewport" content="width=device-width,initial-scale=1" />
<title>Payment {{if .OK}}Successful{{else}}Result{{end}}</title>
<style>
body{font-family:system-ui,Arial,sans-serif;margin:2rem;}
.card{max-width:560px;border:1px solid #ddd;border-radius:12px;padding:24px;}
.ok{color:#057a55} .fail{color:#b00020}
.small{font-size:12px;color:#666}
</style>
</head>
<body>
<div class="card">
  <h2 class="{{if .OK}}ok{{else}}fail{{end}}">{{if .OK}}Payment Successful{{else}}Payment Not Confirmed{{end}}</h2>
  <p>{{.Msg}}</p>
  {{if .Reference}}<div class="small">Reference: {{.Reference}}</div>{{end}}
</div>
</body>
</html>`))

func renderResult(w http.ResponseWriter, code int, ok bool, msg, ref string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_ = page.Execute(w, struct {
		OK        bool
		Msg       string
		Reference string
	}{OK: ok, Msg: msg, Reference: ref})
}
