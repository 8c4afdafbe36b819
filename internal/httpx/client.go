package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	clierr "github.com/ggonzalez94/insights-mcp/internal/errors"
	"github.com/ggonzalez94/insights-mcp/internal/version"
)

// MaxSnippetLen bounds the upstream body excerpt attached to status errors.
const MaxSnippetLen = 200

type Client struct {
	httpClient *http.Client
	userAgent  string
}

// New builds a client. A zero timeout leaves deadlines to the caller's context.
func New(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  version.UserAgent(),
	}
}

// HTTPClient exposes the underlying client for libraries that dial on their own
// (oauth2 token exchange, go-ethereum rpc).
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Response is a fully-read upstream response.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// ContentType returns the media type without parameters, lowercased.
func (r *Response) ContentType() string {
	ct := r.Header.Get("Content-Type")
	if i := strings.Index(ct, ";"); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// StatusError reports a non-2xx upstream answer.
type StatusError struct {
	StatusCode int
	StatusText string
	Snippet    string
}

func (e *StatusError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("upstream returned status %d %s", e.StatusCode, e.StatusText)
	}
	return fmt.Sprintf("upstream returned status %d %s: %s", e.StatusCode, e.StatusText, e.Snippet)
}

// Do sends req once. Non-2xx responses become a CodeNetwork error wrapping a
// *StatusError; transport failures become a CodeNetwork "no response received" error.
func (c *Client) Do(ctx context.Context, req *http.Request) (*Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return nil, mapNetError(req, err)
	}
	buf, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, clierr.Wrap(clierr.CodeNetwork, "read upstream response", readErr)
	}
	out := &Response{
		StatusCode: resp.StatusCode,
		Status:     statusText(resp),
		Header:     resp.Header,
		Body:       buf,
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{
			StatusCode: resp.StatusCode,
			StatusText: out.Status,
			Snippet:    Snippet(buf),
		}
		return out, clierr.Wrap(clierr.CodeNetwork, "upstream request failed", statusErr)
	}
	return out, nil
}

// PostJSON marshals body and POSTs it with a JSON content type. Each decorate
// func runs on the built request before it is sent.
func (c *Client) PostJSON(ctx context.Context, url string, body any, decorate ...func(*http.Request)) (*Response, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeInternal, "encode request body", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeExecutor, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for _, fn := range decorate {
		fn(req)
	}
	return c.Do(ctx, req)
}

// Snippet truncates an upstream body to MaxSnippetLen characters.
func Snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	runes := []rune(s)
	if len(runes) <= MaxSnippetLen {
		return s
	}
	return string(runes[:MaxSnippetLen]) + "..."
}

func statusText(resp *http.Response) string {
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return strings.TrimSpace(strings.TrimPrefix(resp.Status, fmt.Sprintf("%d", resp.StatusCode)))
}

func mapNetError(req *http.Request, err error) error {
	target := req.URL.Redacted()
	if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
		return clierr.Wrap(clierr.CodeNetwork, "no response received from "+target+" (timeout)", err)
	}
	return clierr.Wrap(clierr.CodeNetwork, "no response received from "+target, err)
}
