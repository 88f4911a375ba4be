package reckon

import "github.com/xraph/reckon/id"

// ID is the primary identifier type for all reckon entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
