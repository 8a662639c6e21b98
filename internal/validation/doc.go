// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

// Package validation wraps go-playground/validator v10 with one shared,
// thread-safe instance. Queue messages and fetch completed events are
// checked with it before they are stored or acted on.
//
//	type Message struct {
//	    Pipeline  string `validate:"required,pipeline"`
//	    Directory string `validate:"required_unless=Type cleanup"`
//	}
//
//	if err := validation.ValidateStruct(msg); err != nil {
//	    var verr *validation.Error
//	    errors.As(err, &verr) // verr.Fields lists every failed rule
//	}
package validation
