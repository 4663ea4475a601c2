package email

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"html/template"
	"strconv"
	"strings"
	"sync"
)

//go:embed templates/*.html
var templateFS embed.FS

var currencySymbols = map[string]string{
	"NGN": "₦",
	"USD": "$",
	"GHS": "GH₵",
	"KES": "KSh",
	"ZAR": "R",
}

var funcs = template.FuncMap{
	"money": money,
}

// money renders a major unit amount with thousands separators: 125000 -> ₦125,000.
func money(v any, cur any) string {
	currency, _ := cur.(string)
	var n int64
	switch x := v.(type) {
	case int64:
		n = x
	case int:
		n = int64(x)
	case float64:
		n = int64(x)
	}
	if currency == "" {
		currency = "NGN"
	}
	sym, ok := currencySymbols[strings.ToUpper(currency)]
	if !ok {
		sym = strings.ToUpper(currency) + " "
	}
	neg := n < 0
	if neg {
		n = -n
	}
	s := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + sym + b.String()
	}
	return sym + b.String()
}

// Renderer parses one template set per notification kind, lazily.
type Renderer struct {
	appName string
	mu      sync.Mutex
	sets    map[string]*template.Template
}

func NewRenderer(appName string) *Renderer {
	return &Renderer{appName: appName, sets: map[string]*template.Template{}}
}

func (r *Renderer) set(name string) (*template.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.sets[name]; ok {
		return t, nil
	}
	t, err := template.New(name).Funcs(funcs).ParseFS(templateFS, "templates/layout.html", "templates/"+name+".html")
	if err != nil {
		return nil, fmt.Errorf("email template %q: %w", name, err)
	}
	r.sets[name] = t
	return t, nil
}

// Render returns the subject and HTML body of a notification.
func (r *Renderer) Render(name string, data map[string]any) (string, string, error) {
	t, err := r.set(name)
	if err != nil {
		return "", "", err
	}
	view := make(map[string]any, len(data)+1)
	for k, v := range data {
		view[k] = v
	}
	if _, ok := view["AppName"]; !ok {
		view["AppName"] = r.appName
	}

	var subject, body bytes.Buffer
	if err := t.ExecuteTemplate(&subject, "subject", view); err != nil {
		return "", "", fmt.Errorf("email subject %q: %w", name, err)
	}
	if err := t.ExecuteTemplate(&body, "layout", view); err != nil {
		return "", "", fmt.Errorf("email body %q: %w", name, err)
	}
	// subjects are plain text headers
	return html.UnescapeString(strings.TrimSpace(subject.String())), body.String(), nil
}
