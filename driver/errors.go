package driver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DriverError is an error reported by the server or by response decoding.
type DriverError struct {
	// Code is the server's error code, when one was sent.
	Code string
	// Message is the error text.
	Message string
	// Status is the HTTP status of the failing response, 0 otherwise.
	Status int
}

func (e *DriverError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

var (
	// ErrNotConnected is returned for operations on a closed driver.
	ErrNotConnected = errors.New("driver: not connected")
	// ErrTransactionClosed is returned for queries on a finished transaction.
	ErrTransactionClosed = errors.New("driver: transaction is closed")
)

// responseError turns a non-2xx response into a DriverError, preferring
// the server's structured error body over raw text.
func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return &DriverError{Code: payload.Code, Message: payload.Message, Status: resp.StatusCode}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = resp.Status
	}
	return &DriverError{Message: msg, Status: resp.StatusCode}
}
