// Package clientcmd implements the CLI commands that talk to a running
// quill server over its HTTP control plane: queue management, a producer
// shell (send), a consumer shell (receive) and a monitor shell (watch).
package clientcmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/quillmq/quill/internal/queue"
)

// APIURL resolves the server address, QUILL_HTTP overriding the default.
func APIURL() string {
	if v := os.Getenv("QUILL_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}

type apiError struct {
	Error string `json:"error"`
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var ae apiError
		if json.Unmarshal(data, &ae) == nil && ae.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, ae.Error)
		}
		return fmt.Errorf("%s", resp.Status)
	}
	if out != nil && len(data) > 0 {
		return json.Unmarshal(data, out)
	}
	return nil
}

func postJSON(path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(APIURL()+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

func getJSON(path string, query url.Values, out any) error {
	u := APIURL() + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	resp, err := http.Get(u)
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

// parseAttrs converts repeated key=value flags into message attributes.
func parseAttrs(strAttrs, numAttrs []string) (map[string]queue.Attribute, error) {
	if len(strAttrs) == 0 && len(numAttrs) == 0 {
		return nil, nil
	}
	out := make(map[string]queue.Attribute, len(strAttrs)+len(numAttrs))
	add := func(pairs []string, typ string) error {
		for _, pair := range pairs {
			k, v, ok := strings.Cut(pair, "=")
			if !ok || k == "" {
				return fmt.Errorf("attribute %q: expected key=value", pair)
			}
			out[k] = queue.Attribute{Type: typ, Value: v}
		}
		return nil
	}
	if err := add(strAttrs, queue.AttrString); err != nil {
		return nil, err
	}
	if err := add(numAttrs, queue.AttrNumber); err != nil {
		return nil, err
	}
	return out, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
