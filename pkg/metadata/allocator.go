package metadata

import (
	"k8s.io/apimachinery/pkg/util/sets"
)

// Allocator tracks the project ids currently assigned on this node.
// It is not safe for concurrent use; the volume backend serializes access.
type Allocator struct {
	assigned sets.Set[ProjectID]
}

func NewAllocator() *Allocator {
	return &Allocator{assigned: sets.New[ProjectID]()}
}

// Allocate assigns and returns the id following the first gap in the sorted
// assigned ids. An empty set yields 1; a set without a gap yields max+1.
func (a *Allocator) Allocate() ProjectID {
	ids := sets.List(a.assigned)

	var id ProjectID
	switch len(ids) {
	case 0:
		id = 1
	case 1:
		id = ids[0] + 1
	default:
		id = ids[len(ids)-1] + 1
		for i := 0; i < len(ids)-1; i++ {
			if ids[i]+1 != ids[i+1] {
				id = ids[i] + 1
				break
			}
		}
	}

	a.assigned.Insert(id)
	return id
}

// Reserve marks an id loaded from the registry as assigned.
func (a *Allocator) Reserve(id ProjectID) {
	a.assigned.Insert(id)
}

// Release returns id to the free pool. Unknown ids are ignored.
func (a *Allocator) Release(id ProjectID) {
	a.assigned.Delete(id)
}

func (a *Allocator) Has(id ProjectID) bool {
	return a.assigned.Has(id)
}

// Assigned returns the assigned ids in ascending order.
func (a *Allocator) Assigned() []ProjectID {
	return sets.List(a.assigned)
}

func (a *Allocator) Len() int {
	return a.assigned.Len()
}
