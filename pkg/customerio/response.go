package customerio

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

type errorBody struct {
	Meta struct {
		Error string `json:"error"`
	} `json:"meta"`
}

// readAPIError drains a non-200 response. Only an exact application/json
// content type is parsed for meta.error; anything else (or a body that fails
// to parse) is reported verbatim.
func readAPIError(resp *http.Response) error {
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read error body")
	}

	msg := string(b)
	if resp.Header.Get("Content-Type") == "application/json" {
		var eb errorBody
		if json.Unmarshal(b, &eb) == nil {
			msg = eb.Meta.Error
		}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: msg}
}
