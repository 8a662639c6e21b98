// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package validation

import (
	"errors"
	"strings"
	"testing"
)

type sample struct {
	Kind     string `validate:"required,oneof=import cleanup"`
	Pipeline string `validate:"required,pipeline"`
	Dir      string `validate:"required_unless=Kind cleanup,workdir"`
}

func TestGetValidatorSingleton(t *testing.T) {
	t.Parallel()
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same instance")
	}
}

func TestValidateStruct(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		in       sample
		wantTags map[string]string
	}{
		{"valid import", sample{Kind: "import", Pipeline: "sessions", Dir: "/data/json/1"}, nil},
		{"cleanup needs no dir", sample{Kind: "cleanup", Pipeline: "memberships"}, nil},
		{"unknown pipeline", sample{Kind: "import", Pipeline: "camps", Dir: "d"}, map[string]string{"Pipeline": "pipeline"}},
		{"parent escape", sample{Kind: "import", Pipeline: "sessions", Dir: "/data/json/../../etc"}, map[string]string{"Dir": "workdir"}},
		{"filesystem root", sample{Kind: "import", Pipeline: "sessions", Dir: "/"}, map[string]string{"Dir": "workdir"}},
		{"missing dir", sample{Kind: "import", Pipeline: "sessions"}, map[string]string{"Dir": "required_unless"}},
		{"everything wrong", sample{Kind: "purge"}, map[string]string{"Kind": "oneof", "Pipeline": "required", "Dir": "required_unless"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateStruct(tt.in)
			if tt.wantTags == nil {
				if err != nil {
					t.Fatalf("got error %v, want nil", err)
				}
				return
			}
			var verr *Error
			if !errors.As(err, &verr) {
				t.Fatalf("got %T, want *Error", err)
			}
			got := verr.Tags()
			if len(got) != len(tt.wantTags) {
				t.Fatalf("got tags %v, want %v", got, tt.wantTags)
			}
			for field, tag := range tt.wantTags {
				if got[field] != tag {
					t.Errorf("field %s: got tag %q, want %q", field, got[field], tag)
				}
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()
	err := ValidateStruct(sample{Kind: "purge", Pipeline: "camps", Dir: "d"})
	if err == nil {
		t.Fatal("expected an error")
	}
	msg := err.Error()
	for _, want := range []string{"Kind must be one of: import cleanup", "Pipeline must be sessions or memberships"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q does not contain %q", msg, want)
		}
	}
	if (&Error{}).Error() != "validation failed" {
		t.Error("empty Error should still describe itself")
	}
}
