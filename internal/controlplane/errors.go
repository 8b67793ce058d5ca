// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

package controlplane

import (
	"errors"
	"fmt"
)

const (
	CodeNoSuchVM = 1

	// CodeUnavailable is used when the control plane could not be reached at all.
	CodeUnavailable = 100
	// CodeHypervisorError is used for hypervisor failures without a more specific code.
	CodeHypervisorError = 101
	// CodeMalformedResponse is used when a response lacks a field the caller depends on.
	CodeMalformedResponse = 102
	// CodeInvalidArgument is used when a request was rejected before it reached the control plane.
	CodeInvalidArgument = 103
)

type RemoteCallError struct {
	Method  string
	Code    int
	Message string
	Err     error
}

func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("%s failed with code %d: %s", e.Method, e.Code, e.Message)
}

func (e *RemoteCallError) Unwrap() error {
	return e.Err
}

func NewMalformedResponseError(method, format string, args ...any) *RemoteCallError {
	return &RemoteCallError{
		Method:  method,
		Code:    CodeMalformedResponse,
		Message: fmt.Sprintf(format, args...),
	}
}

func IsRemoteCallCode(err error, code int) bool {
	var rErr *RemoteCallError
	if !errors.As(err, &rErr) {
		return false
	}
	return rErr.Code == code
}

func IsNoSuchVM(err error) bool {
	return IsRemoteCallCode(err, CodeNoSuchVM)
}
