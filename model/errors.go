package model

import (
	"github.com/pkg/errors"
)

var (
	ValidationError = errors.New("validation failed")
	IsValidation    = func(err error) bool { return errors.Cause(err) == ValidationError }
	maskAny         = errors.WithStack
)
