package domain

import "errors"

var (
	ErrInvalidID          = errors.New("invalid id")
	ErrInvalidName        = errors.New("invalid name")
	ErrInvalidTitle       = errors.New("invalid title")
	ErrInvalidKind        = errors.New("invalid kind")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrInvalidPriority    = errors.New("invalid priority")
	ErrInvalidCapacity    = errors.New("invalid capacity")
	ErrInvalidWindow      = errors.New("invalid window")
	ErrInvalidImpact      = errors.New("invalid impact percent")
	ErrSelfDependency     = errors.New("item cannot depend on itself")
	ErrDependencyExists   = errors.New("dependency already declared")
	ErrDependencyNotFound = errors.New("dependency not declared")
)
