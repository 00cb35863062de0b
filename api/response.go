package api

import (
	"encoding/json"
	"net/http"
)

// Error is a generic error structure that is used to send error responses to the client.
type Error struct {
	Code    string      `json:"code,required"`
	Message string      `json:"message,required"`
	Details interface{} `json:"details,omitempty"`
}

// Response is a generic response structure that is used to send responses to the client.
type Response struct {
	Status string      `json:"status,required"`
	Data   interface{} `json:"data,omitempty"`
	Error  *Error      `json:"error,omitempty"`
}

// NewResponse - a fresh response builder.
func NewResponse() *Response {
	return &Response{}
}

// Error message
func (e *Error) Error() string {
	return e.Message
}

// Set data to response
func (rsp *Response) SetData(data interface{}) *Response {
	rsp.Data = data
	rsp.Error = nil

	return rsp
}

// Set error to response
func (rsp *Response) SetError(code string, message string, details ...interface{}) *Response {
	rsp.Data = nil
	rsp.Error = &Error{
		Code:    code,
		Message: message,
	}

	if len(details) == 1 {
		rsp.Error.Details = details[0]
	} else if len(details) > 1 {
		rsp.Error.Details = details
	}

	return rsp
}

func (rsp *Response) send(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if status == http.StatusOK {
		rsp.Status = "ok"
	} else {
		rsp.Status = "error"
	}

	_ = json.NewEncoder(w).Encode(rsp)
}

func (rsp *Response) sendError(w http.ResponseWriter, status int, code, message string) {
	if rsp.Error == nil {
		rsp.Error = &Error{
			Code:    code,
			Message: message,
		}
	}

	rsp.send(w, status)
}

// Send success response to client
func (rsp *Response) Ok(w http.ResponseWriter) {
	rsp.send(w, http.StatusOK)
}

// Send error response to client
func (rsp *Response) BadRequest(w http.ResponseWriter) {
	rsp.sendError(w, http.StatusBadRequest, "bad_request", "Bad request")
}

// Send error response to client
func (rsp *Response) InternalServerError(w http.ResponseWriter) {
	rsp.sendError(w, http.StatusInternalServerError, "internal_server_error", "Internal server error")
}

// Send error response to client
func (rsp *Response) NotFound(w http.ResponseWriter) {
	rsp.sendError(w, http.StatusNotFound, "not_found", "Not found")
}

// Send error response to client
func (rsp *Response) Unauthorized(w http.ResponseWriter) {
	rsp.sendError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
}

// Send error response to client
func (rsp *Response) Forbidden(w http.ResponseWriter) {
	rsp.sendError(w, http.StatusForbidden, "forbidden", "Forbidden")
}

// Send error response to client
func (rsp *Response) Conflict(w http.ResponseWriter) {
	rsp.sendError(w, http.StatusConflict, "conflict", "Conflict")
}

// Send error response to client
func (rsp *Response) TooManyRequests(w http.ResponseWriter) {
	rsp.sendError(w, http.StatusTooManyRequests, "too_many_requests", "Too many requests")
}

// Send error response to client
func (rsp *Response) MethodNotAllowed(w http.ResponseWriter) {
	rsp.sendError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
}
