package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Clement3205902/Clement/internal/apperr"
)

// FailureCode is the client-facing reason an auth operation failed.
type FailureCode string

const (
	FailureInvalidCredentials FailureCode = "invalid_credentials"
	FailureAccountNotFound    FailureCode = "account_not_found"
	FailureProviderCancelled  FailureCode = "provider_cancelled"
	FailureServiceUnavailable FailureCode = "service_unavailable"
	FailureUnknown            FailureCode = "unknown"
)

// Failure is an identity provider error translated into a FailureCode.
type Failure struct {
	Code   FailureCode
	Reason string
	Err    error
}

func (f *Failure) Error() string {
	if f.Reason == "" {
		return fmt.Sprintf("auth: %s", f.Code)
	}
	return fmt.Sprintf("auth: %s (%s)", f.Code, f.Reason)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// FailureCodeOf returns the FailureCode carried by err, FailureUnknown for foreign errors
// and "" for nil.
func FailureCodeOf(err error) FailureCode {
	if err == nil {
		return ""
	}
	var failure *Failure
	if errors.As(err, &failure) {
		return failure.Code
	}
	if apperr.Is(err, apperr.KindServiceUnavailable) {
		return FailureServiceUnavailable
	}
	return FailureUnknown
}

// classifyProviderMessage maps an Identity Toolkit error message such as
// "WEAK_PASSWORD : Password should be at least 6 characters" to a FailureCode.
func classifyProviderMessage(message string) FailureCode {
	code := strings.TrimSpace(message)
	if index := strings.Index(code, " "); index >= 0 {
		code = code[:index]
	}
	switch code {
	case "EMAIL_NOT_FOUND":
		return FailureAccountNotFound
	case "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS", "INVALID_EMAIL", "EMAIL_EXISTS",
		"WEAK_PASSWORD", "USER_DISABLED", "MISSING_PASSWORD", "MISSING_EMAIL":
		return FailureInvalidCredentials
	case "TOO_MANY_ATTEMPTS_TRY_LATER", "OPERATION_NOT_ALLOWED":
		return FailureServiceUnavailable
	case "USER_CANCELLED", "MISSING_ID_TOKEN":
		return FailureProviderCancelled
	default:
		return FailureUnknown
	}
}

// translate wraps err in the taxonomy error matching its FailureCode.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var failure *Failure
	if !errors.As(err, &failure) {
		failure = &Failure{Code: FailureUnknown, Err: err}
	}
	switch failure.Code {
	case FailureServiceUnavailable:
		return apperr.Unavailable(op, failure)
	case FailureUnknown:
		return apperr.New(apperr.KindUnknown, op, failure)
	default:
		return apperr.Auth(op, failure)
	}
}
