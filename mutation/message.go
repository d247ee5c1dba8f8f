package mutation

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/MrEthical07/cmsync/gateway"
)

// Message returns the user facing text for err: the validation summary,
// else the backend message, else a message nested under response or data
// in the error body, else err.Error().
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Summary()
	}
	var ge *gateway.Error
	if errors.As(err, &ge) {
		if ge.Message != "" && ge.Message != gateway.DefaultErrorMessage {
			return ge.Message
		}
		if msg := nestedMessage(ge.Body); msg != "" {
			return msg
		}
		if ge.Message != "" {
			return ge.Message
		}
	}
	return err.Error()
}

func nestedMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	type inner struct {
		Message string `json:"message"`
	}
	var payload struct {
		Response *inner `json:"response"`
		Data     *inner `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, in := range []*inner{payload.Response, payload.Data} {
		if in != nil && strings.TrimSpace(in.Message) != "" {
			return strings.TrimSpace(in.Message)
		}
	}
	return ""
}
