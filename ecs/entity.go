package ecs

import "fmt"

// EntityId is a 64-bit entity identifier. The low 32 bits hold the dense
// index, the next 24 bits a generation counter, and the top bits role flags.
// An id with a role flag set is an opaque key: it participates in archetype
// types and filters like any other id and compares on the full 64-bit value.
type EntityId uint64

const (
	// InstanceOf marks an id as a base-of relation: an archetype whose type
	// contains InstanceOf|base inherits components from the base entity.
	InstanceOf EntityId = 1 << 63
	// ChildOf marks an id as a parent-of relation.
	ChildOf EntityId = 1 << 62
	// RolePair marks an id encoding a (relation, object) couple.
	RolePair EntityId = 1 << 61

	roleMask = InstanceOf | ChildOf | RolePair
)

// Wildcard matches any id, or any relation/object part, in filter terms.
const Wildcard EntityId = 0xFFFFFFFF

const (
	indexBits      = 32
	generationBits = 24

	indexMask      = EntityId(1)<<indexBits - 1
	generationMask = EntityId(1)<<generationBits - 1

	pairObjectBits   = 32
	pairRelationMask = EntityId(1)<<24 - 1

	pairWildcardRelation = Wildcard & pairRelationMask
	pairWildcardObject   = Wildcard
)

func newEntityId(index, generation uint32) EntityId {
	return EntityId(index) | (EntityId(generation)&generationMask)<<indexBits
}

// Index returns the dense slot of the id.
func (e EntityId) Index() uint32 { return uint32(e & indexMask) }

// Generation returns the reuse counter of the id.
func (e EntityId) Generation() uint32 { return uint32(e >> indexBits & generationMask) }

// Role returns the role flags of the id.
func (e EntityId) Role() EntityId { return e & roleMask }

// Target strips role flags, leaving the plain entity id.
func (e EntityId) Target() EntityId { return e &^ roleMask }

// IsPair reports whether the id encodes a (relation, object) couple.
func (e EntityId) IsPair() bool { return e&RolePair != 0 }

// Pair encodes a (relation, object) couple in a single id. The low 32 bits
// carry the object index, the next 24 the relation index; generations are
// not preserved inside a pair.
func Pair(relation, object EntityId) EntityId {
	return RolePair | (EntityId(relation.Index())&pairRelationMask)<<pairObjectBits | EntityId(object.Index())
}

// PairRelation extracts the relation part of a pair id.
func (e EntityId) PairRelation() EntityId { return e >> pairObjectBits & pairRelationMask }

// PairObject extracts the object part of a pair id.
func (e EntityId) PairObject() EntityId { return e & indexMask }

func (e EntityId) String() string {
	switch {
	case e.IsPair():
		return fmt.Sprintf("(%d,%d)", uint64(e.PairRelation()), uint64(e.PairObject()))
	case e&InstanceOf != 0:
		return fmt.Sprintf("InstanceOf|%d", uint64(e.Target()))
	case e&ChildOf != 0:
		return fmt.Sprintf("ChildOf|%d", uint64(e.Target()))
	default:
		return fmt.Sprintf("%d", uint64(e))
	}
}
