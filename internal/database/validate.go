package database

import (
	"fmt"
	"math"
	"strings"
)

// ValidateEmbedding checks that vec has exactly dim finite components.
func ValidateEmbedding(vec []float32, dim int) error {
	if len(vec) != dim {
		return &ValidationError{
			Field:   "embedding",
			Message: fmt.Sprintf("expected %d dimensions, got %d", dim, len(vec)),
		}
	}
	for i, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return &ValidationError{Field: "embedding", Message: fmt.Sprintf("component %d is not finite", i)}
		}
	}
	return nil
}

// ValidateIdentity checks the identity fields required for enrollment.
func ValidateIdentity(identity *Identity, dim int) error {
	if strings.TrimSpace(identity.ID) == "" {
		return &ValidationError{Field: "id", Message: "is required"}
	}
	if strings.TrimSpace(identity.RouteID) == "" {
		return &ValidationError{Field: "route", Message: "is required"}
	}
	if strings.TrimSpace(identity.Name) == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	return ValidateEmbedding(identity.Embedding, dim)
}
