package rpc

import "github.com/google/uuid"

// IDGenerator mints fresh unique identifiers for entities auto-registered
// during serialization (functions, promises, class instances with no
// prior id). Spec.md §6 treats it as an external collaborator consumed
// through this one-method contract.
type IDGenerator interface {
	NewID() string
}

// idGeneratorFunc adapts a bare function to IDGenerator.
type idGeneratorFunc func() string

func (f idGeneratorFunc) NewID() string { return f() }

// DefaultIDGenerator mints RFC 4122 random UUIDs via github.com/google/uuid.
// Used by NewSession when the caller supplies none.
var DefaultIDGenerator IDGenerator = idGeneratorFunc(func() string {
	return uuid.NewString()
})
