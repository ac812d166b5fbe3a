package transport

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/agentstation/shopfloor/pkg/errors"
)

// maxErrorBody caps how much of a failed response ends up in an error message.
const maxErrorBody = 512

// ReadBody reads resp and closes it. Non-OK statuses become an APIError;
// an OK body that is not JSON becomes a ParseError.
func ReadBody(resp *http.Response, resource string) ([]byte, error) {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WrapResource("read", "response body", resource, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		apiErr := errors.NewAPIError(resource, resp.StatusCode, msg)
		if resp.Request != nil && resp.Request.URL != nil {
			apiErr.Endpoint = resp.Request.URL.Path
		}
		return nil, apiErr
	}

	if !json.Valid(body) {
		return nil, errors.NewParseError("json", resource, "response is not valid JSON", nil)
	}
	return body, nil
}

// DecodeResponse reads resp and unmarshals an OK body into target.
func DecodeResponse(resp *http.Response, resource string, target any) error {
	body, err := ReadBody(resp, resource)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, target); err != nil {
		return errors.WrapParse("json", resource, err)
	}
	return nil
}
