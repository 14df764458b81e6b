package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/intellivoid/coffeehouse-api/internal/domain"
)

// MaxBodyBytes caps the size of request bodies, images included.
const MaxBodyBytes = 16 << 20

type paramsKey struct{}

// Params are request parameters merged from the query string, a form or
// multipart body, and a JSON object body. Body values win over the query.
type Params map[string]string

// Get returns a parameter or "".
func (p Params) Get(name string) string {
	return p[name]
}

// Has reports whether the parameter was supplied.
func (p Params) Has(name string) bool {
	_, ok := p[name]
	return ok
}

// Bool parses a boolean parameter. Absent parameters are false.
func (p Params) Bool(name string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(p[name]))
	return b
}

// Int parses an integer parameter. ok is false if it is absent or malformed.
func (p Params) Int(name string) (int, bool) {
	raw, exists := p[name]
	if !exists {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return n, true
}

// BindParams parses the request parameters once and stores them in the
// returned request's context.
func BindParams(r *http.Request) (*http.Request, Params, error) {
	if p, ok := r.Context().Value(paramsKey{}).(Params); ok {
		return r, p, nil
	}
	p, err := parseParams(r)
	if err != nil {
		return r, nil, err
	}
	return r.WithContext(context.WithValue(r.Context(), paramsKey{}, p)), p, nil
}

// RequestParams returns the parameters bound to r, parsing them if needed.
func RequestParams(r *http.Request) (Params, error) {
	_, p, err := BindParams(r)
	return p, err
}

func parseParams(r *http.Request) (Params, error) {
	const op = "params.parse"

	p := make(Params)
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			p[k] = v[0]
		}
	}

	if r.Body == nil || r.Method == http.MethodGet || r.Method == http.MethodHead {
		return p, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
		if err != nil {
			return nil, domain.Invalid(op, domain.ErrCodeGeneric, "The request body could not be read")
		}
		if len(body) > MaxBodyBytes {
			return nil, domain.Errorf(domain.ETOOLARGE, op, "The request body is too large")
		}
		if len(strings.TrimSpace(string(body))) == 0 {
			return p, nil
		}
		var fields map[string]any
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, domain.Invalid(op, domain.ErrCodeGeneric, "The request body is not a valid JSON object")
		}
		for k, v := range fields {
			p[k] = stringify(v)
		}

	case "multipart/form-data":
		r.Body = http.MaxBytesReader(nil, r.Body, MaxBodyBytes)
		if err := r.ParseMultipartForm(MaxBodyBytes); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, domain.Errorf(domain.ETOOLARGE, op, "The request body is too large")
			}
			return nil, domain.Invalid(op, domain.ErrCodeGeneric, "The multipart form could not be parsed")
		}
		for k, v := range r.MultipartForm.Value {
			if len(v) > 0 {
				p[k] = v[0]
			}
		}

	case "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(nil, r.Body, MaxBodyBytes)
		if err := r.ParseForm(); err != nil {
			return nil, domain.Invalid(op, domain.ErrCodeGeneric, "The form could not be parsed")
		}
		for k, v := range r.PostForm {
			if len(v) > 0 {
				p[k] = v[0]
			}
		}
	}

	return p, nil
}

// stringify renders a decoded JSON value as a parameter string.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(raw)
	}
}
