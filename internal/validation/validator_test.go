// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

package validation

import "testing"

func TestIsTitleID(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"440", true},
		{"1091500", true},
		{"0", true},
		{"", false},
		{"44a", false},
		{"-1", false},
		{"public", false},
		{"4 4", false},
	}

	for _, tt := range tests {
		if got := IsTitleID(tt.input); got != tt.want {
			t.Errorf("IsTitleID(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestValidateStruct(t *testing.T) {
	type req struct {
		TitleID string `validate:"required,titleid"`
		Limit   int    `validate:"min=0,max=500"`
	}

	if err := ValidateStruct(&req{TitleID: "440", Limit: 10}); err != nil {
		t.Errorf("expected valid struct, got: %v", err)
	}

	if err := ValidateStruct(&req{TitleID: "abc", Limit: 10}); err == nil {
		t.Error("expected titleid rule to fail")
	}

	if err := ValidateStruct(&req{TitleID: "440", Limit: 9999}); err == nil {
		t.Error("expected max rule to fail")
	}
}
