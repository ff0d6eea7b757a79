package transport

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/agentstation/eolsync/pkg/constants"
	"github.com/agentstation/eolsync/pkg/errors"
	"github.com/agentstation/eolsync/pkg/logging"
)

// DecodeResponse decodes a JSON response into target.
// Non-2xx answers become TransportError carrying a trimmed body excerpt;
// bodies that are empty or not valid JSON become SchemaError.
func DecodeResponse(resp *http.Response, target any) error {
	return decode(resp, target, false)
}

// DecodeOptionalResponse is DecodeResponse for calls whose answer body is
// optional. An empty 2xx body leaves target untouched.
func DecodeOptionalResponse(resp *http.Response, target any) error {
	return decode(resp, target, true)
}

func decode(resp *http.Response, target any, optional bool) error {
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close response body")
		}
	}()

	method, path := requestLine(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WrapTransport(method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.NewTransportError(method, path, resp.StatusCode, excerpt(body))
	}

	if target == nil || (optional && len(bytes.TrimSpace(body)) == 0) {
		return nil
	}
	if len(body) == 0 {
		return &errors.SchemaError{Message: method + " " + path + " returned an empty body"}
	}
	if err := json.Unmarshal(body, target); err != nil {
		return &errors.SchemaError{
			Message: method + " " + path + ": " + err.Error(),
			Err:     err,
		}
	}
	return nil
}

func requestLine(resp *http.Response) (string, string) {
	if resp.Request == nil || resp.Request.URL == nil {
		return "", ""
	}
	return resp.Request.Method, resp.Request.URL.Path
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if s == "" {
		return "empty response body"
	}
	if len(s) > constants.MaxErrorBodyBytes {
		s = s[:constants.MaxErrorBodyBytes] + "..."
	}
	return s
}
