package silo

import (
	"github.com/aretw0/silo/pkg/repository"
	"github.com/aretw0/silo/pkg/typed"
)

// TypedRepository is a public alias for the typed repository.
type TypedRepository[T any] = typed.Repository[T]

// NewTyped creates a type-safe wrapper over repo. T must encode to a JSON object.
func NewTyped[T any](repo *repository.Repository) *TypedRepository[T] {
	return typed.NewRepository[T](repo)
}
