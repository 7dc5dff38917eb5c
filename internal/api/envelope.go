package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Response is the standard API response envelope.
type Response struct {
	Result   interface{}  `json:"result"`
	Success  bool         `json:"success"`
	Errors   []APIError   `json:"errors"`
	Messages []APIMessage `json:"messages"`
}

// APIMessage represents a single informational message in a response.
type APIMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// APIError represents a single error in a response. Code mirrors the HTTP status.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SuccessResponse builds a successful response.
func SuccessResponse(result interface{}) Response {
	return Response{
		Result:   result,
		Success:  true,
		Errors:   []APIError{},
		Messages: []APIMessage{},
	}
}

// MessageResponse builds a successful response that carries only a message.
func MessageResponse(code int, message string) Response {
	resp := SuccessResponse(nil)
	resp.Messages = []APIMessage{{Code: code, Message: message}}
	return resp
}

// ErrorResponse builds an error response.
func ErrorResponse(code int, message string) Response {
	return Response{
		Result:  nil,
		Success: false,
		Errors: []APIError{
			{Code: code, Message: message},
		},
		Messages: []APIMessage{},
	}
}

// WriteJSON serialises resp as JSON and writes it to w with the given HTTP status code.
func WriteJSON(w http.ResponseWriter, status int, resp interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
