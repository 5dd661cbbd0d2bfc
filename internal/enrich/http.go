package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fwblock/internal/support"
)

const (
	maxLookupBody = 1 << 20
	userAgent     = "fwblock-lookup/1.0"
)

// HTTP queries a JSON whois-style endpoint. The URL template must contain
// "{ip}".
type HTTP struct {
	urlTemplate string
	client      *http.Client
}

func NewHTTP(urlTemplate string, timeout time.Duration, dialer support.ContextDialer) *HTTP {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if dialer != nil {
		transport.DialContext = dialer.DialContext
	}
	return &HTTP{
		urlTemplate: urlTemplate,
		client:      &http.Client{Timeout: timeout, Transport: transport},
	}
}

func (h *HTTP) Lookup(ctx context.Context, address string) (map[string]string, error) {
	target := strings.ReplaceAll(h.urlTemplate, "{ip}", url.PathEscape(address))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", address, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLookupBody))
	if err != nil {
		return nil, fmt.Errorf("lookup %s: read body: %w", address, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("lookup %s: unexpected status %d: %s", address, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return flattenJSON(body)
}

// flattenJSON turns a JSON object into string values, joining nested keys
// with ".". Null values are skipped.
func flattenJSON(data []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return nil, fmt.Errorf("decode lookup response: %w", err)
	}

	out := make(map[string]string, len(root))
	flattenInto(out, "", root)
	return out, nil
}

func flattenInto(out map[string]string, prefix string, value any) {
	switch v := value.(type) {
	case map[string]any:
		for k, child := range v {
			flattenInto(out, joinKey(prefix, k), child)
		}
	case []any:
		for i, child := range v {
			flattenInto(out, joinKey(prefix, strconv.Itoa(i)), child)
		}
	case string:
		out[prefix] = v
	case json.Number:
		out[prefix] = v.String()
	case bool:
		out[prefix] = strconv.FormatBool(v)
	case nil:
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
