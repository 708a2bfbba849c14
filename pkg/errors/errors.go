// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	// Client-detected precondition failures. Never sent to the server.
	CodeSessionStartInvalidInput Code = "session.start.invalid_input"
	CodeSessionInvalidTransition Code = "session.lifecycle.invalid_transition"
	CodeSessionLastParticipant   Code = "session.participant.last_remaining"
	CodeSessionLoopNotLoaded     Code = "session.loop.not_loaded"
	CodeSessionEditCommitFailure Code = "session.edit.commit.failure"
	CodeSessionPollBackstop      Code = "session.poll.backstop_timeout"

	// Network boundary.
	CodeAPINetworkFailure   Code = "api.request.network_failure"
	CodeAPITimeout          Code = "api.request.timeout"
	CodeAPIRejected         Code = "api.response.rejected"
	CodeAPIResponseInvalid  Code = "api.response.invalid"
	CodeAPIServerNotRunning Code = "api.server.not_running"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeStoreDatabaseFailure Code = "store.database.failure"
	CodeStorePromptNotFound  Code = "store.prompt.not_found"

	CodeSecretInvalidInput  Code = "secret.invalid_input"
	CodeSecretNotFound      Code = "secret.not_found"
	CodeSecretStoreFailure  Code = "secret.store.failure"
	CodeSecretDeleteFailure Code = "secret.delete.failure"

	CodeServerRequestInvalid  Code = "server.request.invalid"
	CodeServerEntityNotFound  Code = "server.entity.not_found"
	CodeServerLifecycleState  Code = "server.lifecycle.conflict"
	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerStartFailure    Code = "server.start.failure"

	CodeCLIInputInvalid   Code = "cli.input.invalid"
	CodeCLIRequestFailure Code = "cli.request.failure"
	CodeCLISetupFailure   Code = "cli.setup.failure"

	CodeTemplateInvalid Code = "template.parse.invalid"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// Field creates a structured error field.
func Field(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

func FieldLoopID(value string) Attr {
	return Field("loop_id", value)
}

func FieldEntityID(value string) Attr {
	return Field("entity_id", value)
}

func FieldStatus(value string) Attr {
	return Field("status", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// IsValidation reports whether err is a client-detected precondition failure
// that was never sent to the server.
func IsValidation(err error) bool {
	r := reason(CodeOf(err))
	switch r {
	case "invalid_input", "invalid_transition", "last_remaining", "invalid_value", "invalid":
		return true
	}
	return false
}

// IsNetwork reports whether err is a transport-level failure: the request
// never produced a server verdict.
func IsNetwork(err error) bool {
	switch CodeOf(err) {
	case CodeAPINetworkFailure, CodeAPITimeout, CodeAPIServerNotRunning:
		return true
	}
	return false
}

// IsRejection reports whether the server answered with a non-2xx verdict.
func IsRejection(err error) bool {
	return HasCode(err, CodeAPIRejected)
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

// HTTPStatus maps an error code to the HTTP status the reference server
// responds with.
func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
