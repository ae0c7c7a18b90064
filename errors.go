package ecs

import "errors"

var (
	// ErrWorkerPoolClosed indicates jobs cannot be submitted because the pool closed.
	ErrWorkerPoolClosed = errors.New("ecs: worker pool closed")
	// ErrAsyncWritesNotSupported indicates an async work group attempted to mutate components.
	ErrAsyncWritesNotSupported = errors.New("ecs: async work group cannot perform component writes")
	// ErrAsyncSystemNotAllowed indicates a system opted out of async execution.
	ErrAsyncSystemNotAllowed = errors.New("ecs: system does not allow async execution")
	// ErrDuplicateWriteAccess indicates conflicting write access within a work group.
	ErrDuplicateWriteAccess = errors.New("ecs: duplicate write access to component in work group")
	// ErrDuplicateResourceWriteAccess indicates conflicting resource write claims.
	ErrDuplicateResourceWriteAccess = errors.New("ecs: duplicate write access to resource in work group")
	// ErrAsyncResourceWritesNotSupported indicates async groups attempted to mutate resources.
	ErrAsyncResourceWritesNotSupported = errors.New("ecs: async work group cannot perform resource writes")
	// ErrOverlappingQuery indicates a single system declared a query whose
	// read and write facets both cover the same component type.
	ErrOverlappingQuery = errors.New("ecs: system query reads and writes the same component type")
	// ErrLockConflict indicates the scheduler could not acquire every type
	// lock a system's query requires before giving up and failing that
	// system's run for this tick.
	ErrLockConflict = errors.New("ecs: could not acquire component type locks")
	// ErrUnknownEntity indicates an operation referenced an entity id the
	// world has no location for.
	ErrUnknownEntity = errors.New("ecs: unknown entity")
)
