package database

import (
	"math"
	"testing"
	"time"
)

func TestDateOf_UsesLocation(t *testing.T) {
	// 20:30 UTC on Jan 9 is already Jan 10 in India.
	ts := time.Date(2024, 1, 9, 20, 30, 0, 0, time.UTC)
	kolkata, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}

	if got := DateOf(ts, time.UTC); got != "2024-01-09" {
		t.Errorf("DateOf(UTC) = %s, want 2024-01-09", got)
	}
	if got := DateOf(ts, kolkata); got != "2024-01-10" {
		t.Errorf("DateOf(Kolkata) = %s, want 2024-01-10", got)
	}
	if got := DateOf(ts, nil); got != "2024-01-09" {
		t.Errorf("DateOf(nil) = %s, want UTC date", got)
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input   string
		want    Date
		wantErr bool
	}{
		{"2024-01-10", "2024-01-10", false},
		{"2024-02-30", "", true},
		{"10/01/2024", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDate(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !IsValidation(err) {
				t.Errorf("expected validation error, got %T", err)
			}
			if got != tt.want {
				t.Errorf("ParseDate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateEmbedding(t *testing.T) {
	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	tests := []struct {
		name    string
		vec     []float32
		wantErr bool
	}{
		{"valid", []float32{0.1, 0.2, 0.3}, false},
		{"too short", []float32{0.1, 0.2}, true},
		{"too long", []float32{0.1, 0.2, 0.3, 0.4}, true},
		{"nan", []float32{0.1, nan, 0.3}, true},
		{"inf", []float32{inf, 0.2, 0.3}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmbedding(tt.vec, 3)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmbedding() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !IsValidation(err) {
				t.Errorf("expected *ValidationError, got %T", err)
			}
		})
	}
}

func TestValidateIdentity(t *testing.T) {
	valid := Identity{ID: "s1", Name: "Asha", RouteID: "bus-1", Embedding: []float32{1, 0}}

	tests := []struct {
		name   string
		mutate func(*Identity)
		field  string
	}{
		{"missing id", func(i *Identity) { i.ID = " " }, "id"},
		{"missing route", func(i *Identity) { i.RouteID = "" }, "route"},
		{"missing name", func(i *Identity) { i.Name = "" }, "name"},
		{"bad vector", func(i *Identity) { i.Embedding = []float32{1} }, "embedding"},
	}

	if err := ValidateIdentity(&valid, 2); err != nil {
		t.Fatalf("valid identity rejected: %v", err)
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity := valid
			tt.mutate(&identity)
			err := ValidateIdentity(&identity, 2)
			ve, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if ve.Field != tt.field {
				t.Errorf("field = %q, want %q", ve.Field, tt.field)
			}
		})
	}
}
