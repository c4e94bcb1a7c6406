package tools

import "encoding/json"

// mustJSON marshals the payload for the model. Tool payloads are maps
// and slices of plain values, so marshalling cannot realistically fail;
// the fallback keeps the dispatcher total anyway.
func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `{"success":false,"error":"internal: payload not serializable"}`
	}
	return string(b)
}

func okResult(message string, extra map[string]any) string {
	payload := map[string]any{"success": true, "message": message}
	for k, v := range extra {
		payload[k] = v
	}
	return mustJSON(payload)
}

// failResult reports a domain outcome that changed nothing, with the
// user-facing message and any structured hints for the model.
func failResult(message string, extra map[string]any) string {
	payload := map[string]any{"success": false, "message": message}
	for k, v := range extra {
		payload[k] = v
	}
	return mustJSON(payload)
}

func errResult(errMsg, message string) string {
	payload := map[string]any{"success": false, "error": errMsg}
	if message != "" {
		payload["message"] = message
	}
	return mustJSON(payload)
}
