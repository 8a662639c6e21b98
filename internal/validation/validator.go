// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package validation

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/tomtom215/tractionsync/internal/config"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is one failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// Error collects every failed rule of one struct.
type Error struct {
	Fields []FieldError
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return strings.Join(msgs, "; ")
}

// Tags maps each failed field to its tag.
func (e *Error) Tags() map[string]string {
	out := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		out[f.Field] = f.Tag
	}
	return out
}

// GetValidator returns the shared validator. Besides the built-in rules it
// knows:
//
//	pipeline  the value names a configured pipeline
//	workdir   empty, or a directory path with no ".." element that names a
//	          directory below some parent
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Registration only fails for an empty tag or a nil func.
		_ = validate.RegisterValidation("pipeline", func(fl validator.FieldLevel) bool {
			return slices.Contains([]string{config.PipelineSessions, config.PipelineMemberships}, fl.Field().String())
		})
		_ = validate.RegisterValidation("workdir", func(fl validator.FieldLevel) bool {
			return IsWorkDir(fl.Field().String())
		})
	})
	return validate
}

// IsWorkDir reports whether p can name a working directory. The empty
// string passes so required rules stay in charge of presence.
func IsWorkDir(p string) bool {
	if p == "" {
		return true
	}
	if slices.Contains(strings.Split(filepath.ToSlash(p), "/"), "..") {
		return false
	}
	base := filepath.Base(filepath.Clean(p))
	return base != "." && base != string(filepath.Separator)
}

// ValidateStruct checks s against its validate tags. It returns nil or an
// *Error.
func ValidateStruct(s any) error {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &Error{Fields: []FieldError{{Field: "unknown", Tag: "unknown", Message: err.Error()}}}
	}
	fields := make([]FieldError, len(verrs))
	for i, fe := range verrs {
		fields[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: translate(fe),
		}
	}
	return &Error{Fields: fields}
}

var messages = map[string]string{
	"required": "%s is required",
	"uuid":     "%s must be a UUID",
	"pipeline": "%s must be sessions or memberships",
	"workdir":  "%s must name a working directory",
}

var messagesWithParam = map[string]string{
	"oneof":           "%s must be one of: %s",
	"required_unless": "%s is required unless %s",
	"gte":             "%s must be greater than or equal to %s",
	"lte":             "%s must be less than or equal to %s",
}

func translate(fe validator.FieldError) string {
	if tmpl, ok := messages[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, fe.Field())
	}
	if tmpl, ok := messagesWithParam[fe.Tag()]; ok {
		return fmt.Sprintf(tmpl, fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
}
