package actor

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// registry maps names to handles. Registration is a compare-and-set: a name held by a live actor
// cannot be taken, while a name held by a dead actor is replaced.
type registry struct {
	names sync.Map
}

func alive(h Handle) bool {
	if ref, ok := h.(*Ref); ok {
		return ref.IsAlive()
	}
	return true
}

func (r *registry) register(name string, h Handle) error {
	for {
		existing, loaded := r.names.LoadOrStore(name, h)
		if !loaded || existing == h {
			return nil
		}
		if alive(existing.(Handle)) {
			return errors.Wrapf(ErrAlreadyRegistered, "registering %q", name)
		}
		if r.names.CompareAndSwap(name, existing, h) {
			return nil
		}
	}
}

func (r *registry) unregister(name string, h Handle) {
	r.names.CompareAndDelete(name, h)
}

func (r *registry) lookup(name string) Handle {
	h, ok := r.names.Load(name)
	if !ok {
		return nil
	}
	return h.(Handle)
}

func (r *registry) list() []string {
	var names []string
	r.names.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}
