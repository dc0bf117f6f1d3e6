package api

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

// Field limits for signup payloads.
const (
	NameMinLength     = 4
	NameMaxLength     = 40
	UsernameMinLength = 3
	UsernameMaxLength = 15
	EmailMaxLength    = 40
	PasswordMinLength = 6
	PasswordMaxLength = 20
)

// ValidateSignUp checks a signup request and returns the first invalid field.
func ValidateSignUp(req *SignUpRequest) *APIError {
	if req == nil {
		return NewInvalidRequestError("", "request body is required")
	}
	if err := checkLength("name", strings.TrimSpace(req.Name), NameMinLength, NameMaxLength); err != nil {
		return err
	}
	if err := checkLength("username", req.Username, UsernameMinLength, UsernameMaxLength); err != nil {
		return err
	}
	if strings.ContainsAny(req.Username, " \t\r\n@/") {
		return NewInvalidRequestError("username", "username must not contain whitespace, '@' or '/'")
	}
	if err := ValidateEmail(req.Email); err != nil {
		return err
	}
	return checkLength("password", req.Password, PasswordMinLength, PasswordMaxLength)
}

// ValidateSignIn checks that both credentials are present.
func ValidateSignIn(req *SignInRequest) *APIError {
	if req == nil {
		return NewInvalidRequestError("", "request body is required")
	}
	if strings.TrimSpace(req.UsernameOrEmail) == "" {
		return NewInvalidRequestError("usernameOrEmail", "usernameOrEmail is required")
	}
	if req.Password == "" {
		return NewInvalidRequestError("password", "password is required")
	}
	return nil
}

// ValidateEmail checks that s is a bare address within the length limit.
func ValidateEmail(s string) *APIError {
	if s == "" {
		return NewInvalidRequestError("email", "email is required")
	}
	if utf8.RuneCountInString(s) > EmailMaxLength {
		return NewInvalidRequestError("email",
			fmt.Sprintf("email must be at most %d characters", EmailMaxLength))
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return NewInvalidRequestError("email", "email is not a valid address")
	}
	return nil
}

func checkLength(param, value string, minLen, maxLen int) *APIError {
	n := utf8.RuneCountInString(value)
	if n == 0 {
		return NewInvalidRequestError(param, param+" is required")
	}
	if n < minLen || n > maxLen {
		return NewInvalidRequestError(param,
			fmt.Sprintf("%s must be between %d and %d characters", param, minLen, maxLen))
	}
	return nil
}
