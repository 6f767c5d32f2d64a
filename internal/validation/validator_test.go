// Shelfwise - Catalog Recommendation Training and Serving
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/shelfwise

package validation

import (
	"strings"
	"testing"
)

func TestGetValidator_Singleton(t *testing.T) {
	v1 := GetValidator()
	v2 := GetValidator()
	if v1 == nil || v1 != v2 {
		t.Error("GetValidator() should return one shared instance")
	}
}

type configRequest struct {
	ModelType string  `json:"model_type" validate:"required,modeltype"`
	Schedule  string  `json:"training_schedule" validate:"omitempty,oneof=manual periodic"`
	Spec      string  `json:"schedule_spec" validate:"required_if=Schedule periodic,omitempty,cronspec"`
	Threshold float64 `json:"performance_threshold" validate:"gte=0,lte=1"`
	Limit     int     `json:"limit" validate:"omitempty,min=1,max=100"`
	Internal  string  `json:"-" validate:"max=3"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name      string
		input     configRequest
		wantField string
		wantTag   string
	}{
		{"valid manual", configRequest{ModelType: "content"}, "", ""},
		{"valid periodic", configRequest{ModelType: "reorder", Schedule: "periodic", Spec: "0 3 * * *"}, "", ""},
		{"descriptor spec", configRequest{ModelType: "clustering", Schedule: "periodic", Spec: "@daily"}, "", ""},
		{"missing model type", configRequest{}, "model_type", "required"},
		{"unknown model type", configRequest{ModelType: "bandit"}, "model_type", "modeltype"},
		{"bad schedule", configRequest{ModelType: "content", Schedule: "hourly"}, "training_schedule", "oneof"},
		{"periodic without spec", configRequest{ModelType: "content", Schedule: "periodic"}, "schedule_spec", "required_if"},
		{"bad cron spec", configRequest{ModelType: "content", Spec: "every tuesday"}, "schedule_spec", "cronspec"},
		{"threshold above one", configRequest{ModelType: "content", Threshold: 1.5}, "performance_threshold", "lte"},
		{"limit too large", configRequest{ModelType: "content", Limit: 500}, "limit", "max"},
		{"json dash uses go name", configRequest{ModelType: "content", Internal: "abcd"}, "Internal", "max"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateStruct(&tt.input)
			if tt.wantField == "" {
				if verr != nil {
					t.Fatalf("ValidateStruct() = %v, want nil", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			errs := verr.Errors()
			if len(errs) != 1 {
				t.Fatalf("got %d errors (%v), want 1", len(errs), verr)
			}
			if errs[0].Field() != tt.wantField || errs[0].Tag() != tt.wantTag {
				t.Errorf("error = %s/%s, want %s/%s", errs[0].Field(), errs[0].Tag(), tt.wantField, tt.wantTag)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	single := ValidateStruct(&configRequest{ModelType: "bandit"}).ToAPIError()
	if single.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q", single.Code)
	}
	if !strings.Contains(single.Message, "model_type must be one of") {
		t.Errorf("Message = %q", single.Message)
	}
	if single.Details["field"] != "model_type" {
		t.Errorf("Details = %v", single.Details)
	}

	multi := ValidateStruct(&configRequest{Threshold: -1, Limit: 1000}).ToAPIError()
	fields, ok := multi.Details["fields"].([]map[string]any)
	if !ok || len(fields) != 3 {
		t.Fatalf("Details[fields] = %v, want 3 entries", multi.Details["fields"])
	}
	if strings.Count(multi.Message, ";") != 2 {
		t.Errorf("Message = %q, want three joined messages", multi.Message)
	}
}

func TestTranslateError_Messages(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"required", &configRequest{}, "model_type is required"},
		{"numeric max", &configRequest{ModelType: "content", Limit: 101}, "limit must be at most 100"},
		{"string max", &configRequest{ModelType: "content", Internal: "long"}, "Internal must be at most 3 characters"},
		{"gte", &configRequest{ModelType: "content", Threshold: -0.1}, "performance_threshold must be greater than or equal to 0"},
		{"cron", &configRequest{ModelType: "content", Spec: "61 * * * *"}, "schedule_spec must be a valid cron expression"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateStruct(tt.input)
			if verr == nil {
				t.Fatal("ValidateStruct() = nil")
			}
			if got := verr.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}
