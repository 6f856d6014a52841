package identity

import "errors"

// Code identifies an authentication failure. The values match the codes the
// console UI already switches on.
type Code string

const (
	CodeInvalidCredential   Code = "invalid-credential"
	CodeUserNotFound        Code = "user-not-found"
	CodeTooManyRequests     Code = "too-many-requests"
	CodeEmailInUse          Code = "email-already-in-use"
	CodeWeakPassword        Code = "weak-password"
	CodeInvalidEmail        Code = "invalid-email"
	CodeInvalidLink         Code = "invalid-action-code"
	CodeMissingEmail        Code = "missing-email"
	CodePopupClosed         Code = "popup-closed-by-user"
	CodeNetwork             Code = "network-request-failed"
	CodeOperationNotAllowed Code = "operation-not-allowed"
)

var messages = map[Code]string{
	CodeInvalidCredential:   "Invalid email or password",
	CodeUserNotFound:        "No account found with this email",
	CodeTooManyRequests:     "Too many attempts. Please try again later",
	CodeEmailInUse:          "An account with this email already exists",
	CodeWeakPassword:        "Password is too weak",
	CodeInvalidEmail:        "Invalid email address",
	CodeInvalidLink:         "This sign-in link is invalid or has expired",
	CodeMissingEmail:        "Please enter the email address the link was sent to",
	CodePopupClosed:         "Sign-in was cancelled",
	CodeNetwork:             "Network error. Please check your connection and try again",
	CodeOperationNotAllowed: "This sign-in method is not enabled",
}

// CredentialError is a rejected sign-in or sign-up attempt.
type CredentialError struct {
	Code Code
	Err  error
}

func (e *CredentialError) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Err.Error()
	}
	return string(e.Code)
}

func (e *CredentialError) Unwrap() error { return e.Err }

func (e *CredentialError) Is(target error) bool {
	t, ok := target.(*CredentialError)
	return ok && t.Code == e.Code
}

// ProviderInteractionError is a failure talking to the identity provider
// rather than a rejection of the credentials.
type ProviderInteractionError struct {
	Code Code
	Err  error
}

func (e *ProviderInteractionError) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Err.Error()
	}
	return string(e.Code)
}

func (e *ProviderInteractionError) Unwrap() error { return e.Err }

func (e *ProviderInteractionError) Is(target error) bool {
	t, ok := target.(*ProviderInteractionError)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidCredential = &CredentialError{Code: CodeInvalidCredential}
	ErrUserNotFound      = &CredentialError{Code: CodeUserNotFound}
	ErrTooManyRequests   = &CredentialError{Code: CodeTooManyRequests}
	ErrEmailInUse        = &CredentialError{Code: CodeEmailInUse}
	ErrWeakPassword      = &CredentialError{Code: CodeWeakPassword}
	ErrInvalidEmail      = &CredentialError{Code: CodeInvalidEmail}
	ErrInvalidLink       = &CredentialError{Code: CodeInvalidLink}
	ErrMissingEmail      = &CredentialError{Code: CodeMissingEmail}

	ErrPopupClosed         = &ProviderInteractionError{Code: CodePopupClosed}
	ErrNetwork             = &ProviderInteractionError{Code: CodeNetwork}
	ErrOperationNotAllowed = &ProviderInteractionError{Code: CodeOperationNotAllowed}
)

func credErr(code Code, cause error) error { return &CredentialError{Code: code, Err: cause} }

func providerErr(code Code, cause error) error {
	return &ProviderInteractionError{Code: code, Err: cause}
}

// ErrorCode extracts the failure code, or "" for errors from elsewhere.
func ErrorCode(err error) Code {
	var ce *CredentialError
	if errors.As(err, &ce) {
		return ce.Code
	}
	var pe *ProviderInteractionError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// Message returns the text shown to the user for err.
func Message(err error) string {
	if m, ok := messages[ErrorCode(err)]; ok {
		return m
	}
	return "Authentication failed"
}
