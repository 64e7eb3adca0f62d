package http

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"saldo/internal/core"
)

// maxBodyBytes bounds the body read by NewRequestBodyParser.
const maxBodyBytes = 64 << 10

// RequestBodyParser reads fields from a JSON object or a form-encoded body.
// htmx posts forms; API clients post JSON. A body without a JSON content type
// is still read as JSON when it starts with '{'.
type RequestBodyParser struct {
	body     []byte
	jsonBody bool
	fields   map[string]any
	form     url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser reads at most maxBodyBytes of the request body.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	trimmed := bytes.TrimSpace(p.body)
	p.jsonBody = mediaType == "application/json" || (len(trimmed) > 0 && trimmed[0] == '{')
	return p
}

// Parse decodes the body once; later calls return the first result. An empty
// body has no fields and is not an error.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	switch {
	case p.err != nil:
	case len(bytes.TrimSpace(p.body)) == 0:
	case p.IsJSON():
		p.err = json.Unmarshal(p.body, &p.fields)
	default:
		p.form, p.err = url.ParseQuery(string(p.body))
	}
	return p.err
}

func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonBody
}

// Get returns the sanitized value of key, or "" when it is absent.
func (p *RequestBodyParser) Get(key string) string {
	var raw string
	if p.IsJSON() {
		raw = jsonString(p.fields[key])
	} else {
		raw = p.form.Get(key)
	}
	return strings.TrimSpace(sanitizeInput(raw))
}

// jsonString renders the scalar values encoding/json produces.
func jsonString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// Transaction builds a transaction from the description, amount and type
// fields. The amount is passed through untouched.
func (p *RequestBodyParser) Transaction() (core.Transaction, error) {
	return core.NewTransaction(p.Get("description"), p.Get("amount"), p.Get("type"))
}

// RequirePOST returns a 405 response for anything but POST.
func RequirePOST(r *http.Request) *HTMXResponse {
	if r.Method == http.MethodPost {
		return nil
	}
	return MethodNotAllowed(http.MethodPost)
}
