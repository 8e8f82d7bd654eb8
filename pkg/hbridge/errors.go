// Copyright 2025 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package hbridge

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

var (
	// InvalidChannelError is the cause of errors caused by a channel index outside [0..1].
	InvalidChannelError = errors.New("invalid channel")
	IsInvalidChannel    = isErrorFunc(InvalidChannelError)
	// InvalidLinesError is the cause of errors caused by a missing or shared line.
	InvalidLinesError = errors.New("invalid lines")
	IsInvalidLines    = isErrorFunc(InvalidLinesError)
	// IOFailureError matches (using errors.Is) all errors caused by a failing line.
	IOFailureError = errors.New("io failure")

	maskAny = errors.WithStack
)

func isErrorFunc(typeOfError error) func(err error) bool {
	return func(err error) bool {
		return err == typeOfError || errors.Cause(err) == typeOfError
	}
}

// IsIOFailure returns true when the given error was caused by
// setting one or more lines.
func IsIOFailure(err error) bool {
	return errors.Is(err, IOFailureError)
}

// LineError is returned when setting one or more lines failed.
// Lines that were set successfully before or after the failing line
// keep their new level.
type LineError struct {
	// Names of the lines that failed
	Lines []string
	// Error returned by the line(s)
	Err error
}

// Error implements the error interface.
func (e *LineError) Error() string {
	return fmt.Sprintf("failed to set %s: %s", strings.Join(e.Lines, ", "), e.Err)
}

// Unwrap returns the error returned by the line(s).
func (e *LineError) Unwrap() error {
	return e.Err
}

// Is reports a LineError as an IOFailureError.
func (e *LineError) Is(target error) bool {
	return target == IOFailureError
}
