package identity

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// API paths of the tRPC batch endpoints.
const (
	pathNonce   = "/api/trpc/auth.nonce?batch=1"
	pathLogin   = "/api/trpc/auth.login?batch=1"
	pathSession = "/api/trpc/auth.session?batch=1&input=%7B%220%22%3A%7B%22json%22%3Anull%2C%22meta%22%3A%7B%22values%22%3A%5B%22undefined%22%5D%7D%7D%7D"
	pathQuest   = "/api/trpc/quests.completeQuest?batch=1"
)

// Result and error locations inside a batch response.
const (
	resultPath       = "0.result.data.json"
	errorPath        = "0.error.json"
	errorMessagePath = "0.error.json.message"
)

const batchEnvelope = `{"0":{"json":{}}}`

// batchBody builds {"0":{"json":{...}}} from alternating key/value pairs.
func batchBody(kv ...any) ([]byte, error) {
	if len(kv)%2 != 0 {
		return nil, fmt.Errorf("batch body needs key/value pairs")
	}
	body := []byte(batchEnvelope)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			return nil, fmt.Errorf("batch body key %v is not a string", kv[i])
		}
		var err error
		body, err = sjson.SetBytes(body, "0.json."+key, kv[i+1])
		if err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", key, err)
		}
	}
	return body, nil
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// apiError prefers the tRPC error message and falls back to status plus body.
func apiError(resp Response) *APIError {
	if msg := gjson.GetBytes(resp.Body, errorMessagePath); msg.Exists() && msg.String() != "" {
		return &APIError{Status: resp.Status, Message: msg.String()}
	}
	body := strings.TrimSpace(string(resp.Body))
	return &APIError{
		Status:  resp.Status,
		Message: fmt.Sprintf("HTTP error! Status: %d, Body: %s", resp.Status, body),
	}
}

func result(body []byte) gjson.Result {
	return gjson.GetBytes(body, resultPath)
}

// resultError returns the tRPC error message of a 2xx batch response, or ""
// when the first entry carries no error.
func resultError(body []byte) string {
	e := gjson.GetBytes(body, errorPath)
	if !e.Exists() {
		return ""
	}
	if msg := e.Get("message").String(); msg != "" {
		return msg
	}
	return "unknown error"
}

// truthy follows JSON falsiness: missing, null, false, 0 and "" are false.
func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.Null:
		return false
	case gjson.False:
		return false
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return r.Str != ""
	default:
		return r.Exists()
	}
}
