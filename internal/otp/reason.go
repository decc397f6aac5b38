package otp

import (
	"fmt"
	"strings"
)

// Reason binds a code to the flow that issued it. A user may hold one active
// code per reason.
type Reason int

const (
	ReasonSignUp Reason = iota
	ReasonForgetPassword
	ReasonEmailVerify
	ReasonPasswordReset
)

var reasonNames = map[Reason]string{
	ReasonSignUp:         "SignUp",
	ReasonForgetPassword: "ForgetPassword",
	ReasonEmailVerify:    "EmailVerify",
	ReasonPasswordReset:  "PasswordReset",
}

// Valid reports whether r is one of the declared reasons.
func (r Reason) Valid() bool {
	_, ok := reasonNames[r]
	return ok
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// MarshalText renders the reason by name.
func (r Reason) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("otp: invalid reason %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText accepts a reason name.
func (r *Reason) UnmarshalText(text []byte) error {
	parsed, err := ParseReason(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseReason resolves a reason by name, ignoring case.
func ParseReason(value string) (Reason, error) {
	value = strings.TrimSpace(value)
	for reason, name := range reasonNames {
		if strings.EqualFold(name, value) {
			return reason, nil
		}
	}
	return 0, fmt.Errorf("otp: unknown reason %q", value)
}
