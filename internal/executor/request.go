package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	clierr "github.com/ggonzalez94/insights-mcp/internal/errors"
	"github.com/ggonzalez94/insights-mcp/internal/httpx"
	"github.com/ggonzalez94/insights-mcp/internal/security"
)

var placeholderRE = regexp.MustCompile(`\{([^{}]+)\}`)

// substitutePath replaces every {name} with the escaped payload value and
// reports which payload keys were consumed. A placeholder without a value is an error.
func substitutePath(path string, payload map[string]any) (string, map[string]bool, error) {
	used := map[string]bool{}
	var missing []string
	out := placeholderRE.ReplaceAllStringFunc(path, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := payload[name]
		if !ok || v == nil {
			missing = append(missing, name)
			return m
		}
		used[name] = true
		return url.PathEscape(stringify(v))
	})
	if len(missing) > 0 {
		return "", nil, clierr.New(clierr.CodeExecutor,
			fmt.Sprintf("missing value for path parameter(s) %s in %s", strings.Join(missing, ", "), path))
	}
	return out, used, nil
}

func isAbsoluteURL(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// addQuery appends one parameter: arrays repeat the key, objects are JSON-encoded.
func addQuery(q url.Values, name string, v any) {
	switch typed := v.(type) {
	case nil:
	case []any:
		for _, item := range typed {
			q.Add(name, stringify(item))
		}
	case []string:
		for _, item := range typed {
			q.Add(name, item)
		}
	default:
		q.Add(name, stringify(v))
	}
}

// stringify renders scalars plainly and everything else as JSON.
func stringify(v any) string {
	switch typed := v.(type) {
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case json.Number:
		return typed.String()
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(typed)
	}
	buf, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(buf)
}

func withQuery(rawURL string, q url.Values) (string, error) {
	if len(q) == 0 {
		return rawURL, nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeExecutor, "invalid request url", err)
	}
	existing := parsed.Query()
	for k, values := range q {
		for _, v := range values {
			existing.Add(k, v)
		}
	}
	parsed.RawQuery = existing.Encode()
	return parsed.String(), nil
}

type outgoing struct {
	Method      string
	URL         string
	Body        []byte
	ContentType string
	Headers     map[string]string
	Decoration  security.Decoration
}

// send performs one request and normalizes the response body.
func send(ctx context.Context, client *httpx.Client, o outgoing) (Result, error) {
	var body io.Reader
	if o.Body != nil {
		body = bytes.NewReader(o.Body)
	}
	req, err := http.NewRequestWithContext(ctx, o.Method, o.URL, body)
	if err != nil {
		return Result{}, clierr.Wrap(clierr.CodeExecutor, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if o.ContentType != "" {
		req.Header.Set("Content-Type", o.ContentType)
	}
	keys := make([]string, 0, len(o.Headers))
	for k := range o.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		req.Header.Set(k, o.Headers[k])
	}
	o.Decoration.Apply(req)
	resp, err := client.Do(ctx, req)
	if err != nil {
		return Result{}, err
	}
	return normalize(resp)
}

// normalize re-serializes JSON bodies, passes text through and substitutes a
// placeholder object for empty bodies.
func normalize(resp *httpx.Response) (Result, error) {
	out := Result{
		Status:      resp.StatusCode,
		StatusText:  resp.Status,
		ContentType: resp.ContentType(),
	}
	trimmed := bytes.TrimSpace(resp.Body)
	if len(trimmed) == 0 {
		out.ContentType = "application/json"
		out.Body = emptyBody(resp.StatusCode, resp.Status)
		return out, nil
	}
	if isJSONContentType(out.ContentType) {
		var decoded any
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&decoded); err != nil {
			return Result{}, clierr.Wrap(clierr.CodeNetwork,
				fmt.Sprintf("malformed JSON response (status %d): %s", resp.StatusCode, httpx.Snippet(trimmed)), err)
		}
		pretty, err := marshalIndent(decoded)
		if err != nil {
			return Result{}, clierr.Wrap(clierr.CodeInternal, "encode response", err)
		}
		out.Body = string(pretty)
		return out, nil
	}
	out.Body = string(resp.Body)
	return out, nil
}

type emptyPlaceholder struct {
	Status     int    `json:"status"`
	StatusText string `json:"statusText"`
	Body       any    `json:"body"`
}

func emptyBody(status int, text string) string {
	buf, _ := json.Marshal(emptyPlaceholder{Status: status, StatusText: text})
	return string(buf)
}

// marshalIndent is json.MarshalIndent without HTML escaping.
func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func isJSONContentType(ct string) bool {
	return ct == "application/json" || strings.HasSuffix(ct, "+json")
}

// jsonResult wraps a locally produced value as a 200 JSON result.
func jsonResult(v any) (Result, error) {
	buf, err := marshalIndent(v)
	if err != nil {
		return Result{}, clierr.Wrap(clierr.CodeInternal, "encode result", err)
	}
	return Result{Status: http.StatusOK, StatusText: "OK", ContentType: "application/json", Body: string(buf)}, nil
}

// StaticResult renders an endpoint's static payload without any network call.
func StaticResult(v any) (Result, error) {
	return jsonResult(v)
}
