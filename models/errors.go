package models

import "fmt"

// UnsupportedPlatformError is returned for a platform outside the supported set.
type UnsupportedPlatformError struct {
	Platform string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("unsupported platform %q (supported: twitter, linkedin, reddit)", e.Platform)
}

// ValidationError reports a bad request field. Nothing has been written when
// it is returned.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}
