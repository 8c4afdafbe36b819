package snippet

import (
	"encoding/json"
	"strconv"
	"strings"
	"text/template"
)

var templates = template.Must(template.New("snippet").Funcs(template.FuncMap{
	"sh":     shellQuote,
	"str":    jsonString,
	"goStr":  strconv.Quote,
	"indent": indentLines,
}).Parse(curlTemplate + pythonTemplate + javascriptTemplate + goTemplate))

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// jsonString is a double-quoted literal valid in Python and JavaScript.
func jsonString(s string) string {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimRight(b.String(), "\n")
}

func indentLines(prefix, s string) string {
	return strings.ReplaceAll(s, "\n", "\n"+prefix)
}

const curlTemplate = `{{define "curl"}}curl -X {{.Method}} {{sh .URL}}{{range .Header}} \
  -H {{sh (printf "%s: %s" .Name .Value)}}{{end}}{{if .Body}} \
  --data-raw {{sh .Body}}{{end}}
{{end}}`

const pythonTemplate = `{{define "python"}}import requests

{{if .Body}}payload = """{{.Body}}"""

{{end}}response = requests.request(
    {{str .Method}},
    {{str .URL}},
    headers={ {{- range $i, $h := .Header}}{{if $i}},{{end}}
        {{str $h.Name}}: {{str $h.Value}}{{end}}
    },{{if .Body}}
    data=payload,{{end}}
)
print(response.status_code)
print(response.text)
{{end}}`

const javascriptTemplate = `{{define "javascript"}}const response = await fetch({{str .URL}}, {
  method: {{str .Method}},
  headers: { {{- range $i, $h := .Header}}{{if $i}},{{end}}
    {{str $h.Name}}: {{str $h.Value}}{{end}}
  },{{if .Body}}
  body: JSON.stringify({{indent "  " .Body}}),{{end}}
});
console.log(response.status);
console.log(await response.text());
{{end}}`

const goTemplate = `{{define "go"}}package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
)

func main() {
	body := strings.NewReader({{goStr .Body}})
	req, err := http.NewRequest({{goStr .Method}}, {{goStr .URL}}, body)
	if err != nil {
		panic(err)
	}
{{- range .Header}}
	req.Header.Set({{goStr .Name}}, {{goStr .Value}})
{{- end}}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		panic(err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	fmt.Println(resp.StatusCode)
	fmt.Println(string(out))
}
{{end}}`
