// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

// Package validation provides struct validation using
// go-playground/validator v10 with a thread-safe singleton instance and
// a custom "titleid" rule for catalog title identifiers.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// getValidator returns the singleton validator, registering custom rules
// on first use.
func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// titleid: non-empty string of decimal digits (the upstream
		// catalog uses integer-like string identifiers).
		_ = validate.RegisterValidation("titleid", func(fl validator.FieldLevel) bool {
			return IsTitleID(fl.Field().String())
		})
	})
	return validate
}

// IsTitleID reports whether s is a valid catalog title identifier:
// a non-empty decimal digit string.
func IsTitleID(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ValidateStruct validates a struct using its `validate` tags.
// Returns a flattened, human-readable error or nil.
func ValidateStruct(s interface{}) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("field %s failed rule %q", fe.Field(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
