package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/TableOrder/pkg/errors"
)

// downstreamErrorResponse accepts both error shapes seen from upstream
// services: {"error":{"code":"...","message":"..."}} and {"error":"..."}.
type downstreamErrorResponse struct {
	Error json.RawMessage `json:"error"`
}

type structuredError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an AppError. The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	if code, message, ok := DecodeErrorBody(bodyBytes); ok {
		return mapDownstreamError(resp.StatusCode, code, message, serviceName)
	}

	return fmt.Errorf("%s returned status %d: %s", serviceName, resp.StatusCode, string(bodyBytes))
}

// DecodeErrorBody extracts code and message from an error envelope. ok is
// false when body carries no error field.
func DecodeErrorBody(body []byte) (code, message string, ok bool) {
	var downstream downstreamErrorResponse
	if json.Unmarshal(body, &downstream) != nil || len(downstream.Error) == 0 || string(downstream.Error) == "null" {
		return "", "", false
	}

	var s string
	if json.Unmarshal(downstream.Error, &s) == nil {
		return "", s, s != ""
	}

	var se structuredError
	if json.Unmarshal(downstream.Error, &se) == nil && (se.Code != "" || se.Message != "") {
		return se.Code, se.Message, true
	}
	return "", "", false
}

func mapDownstreamError(status int, code, message, serviceName string) error {
	qualifiedMsg := fmt.Sprintf("%s: %s", serviceName, message)

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(serviceName, message)
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(qualifiedMsg)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualifiedMsg)
	case status == http.StatusForbidden || status == http.StatusUnauthorized:
		return apperrors.Forbidden(qualifiedMsg)
	case status == http.StatusGone:
		return apperrors.Gone(qualifiedMsg)
	case status == http.StatusUnprocessableEntity || status == http.StatusPaymentRequired:
		// Payment messages are shown to the guest unqualified.
		return apperrors.PaymentFailed(message)
	case status == http.StatusTooManyRequests:
		return apperrors.TooManyRequests(qualifiedMsg)
	case status == http.StatusServiceUnavailable:
		return apperrors.ServiceUnavailable(qualifiedMsg)
	case IsClientError(status):
		if code == "" {
			code = http.StatusText(status)
		}
		return &apperrors.AppError{
			Code:    code,
			Message: qualifiedMsg,
			Status:  status,
		}
	default:
		return apperrors.Internal(fmt.Errorf("%s returned status %d (%s): %s", serviceName, status, code, message))
	}
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
