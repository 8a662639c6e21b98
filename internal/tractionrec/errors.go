// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package tractionrec

import (
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// ErrInvalidToken is returned when no usable bearer token could be obtained.
var ErrInvalidToken = errors.New("invalid access token")

// InvalidResponseError is a non-2xx API response. Message is the shortest
// useful message found in the response body.
type InvalidResponseError struct {
	StatusCode int
	Message    string

	body []byte
}

func (e *InvalidResponseError) Error() string {
	return e.Message
}

// newInvalidResponseError extracts a short message from a TractionRec error
// body. Query errors are a JSON array of {message, errorCode}; OAuth errors
// are an object with error and error_description.
func newInvalidResponseError(status int, body []byte) *InvalidResponseError {
	e := &InvalidResponseError{
		StatusCode: status,
		Message:    fmt.Sprintf("unexpected status %d", status),
		body:       body,
	}

	var list []struct {
		Message   string `json:"message"`
		ErrorCode string `json:"errorCode"`
	}
	if json.Unmarshal(body, &list) == nil && len(list) > 0 && list[0].Message != "" {
		e.Message = list[0].Message
		return e
	}

	var obj struct {
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if json.Unmarshal(body, &obj) == nil {
		switch {
		case obj.Message != "":
			e.Message = obj.Message
		case obj.ErrorDescription != "":
			e.Message = obj.ErrorDescription
		case obj.Error != "":
			e.Message = obj.Error
		}
		return e
	}

	if text := strings.TrimSpace(string(body)); text != "" && len(text) <= 200 {
		e.Message = fmt.Sprintf("unexpected status %d: %s", status, text)
	}
	return e
}
