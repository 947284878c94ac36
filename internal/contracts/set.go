package contracts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ggonzalez94/frax-migrate/internal/registry"
)

// Set holds resolved handles in catalog order.
type Set struct {
	order   []registry.Name
	handles map[registry.Name]Handle
}

func NewSet(handles ...Handle) Set {
	s := Set{}
	for _, h := range handles {
		s.add(h)
	}
	return s
}

func (s *Set) add(h Handle) {
	if s.handles == nil {
		s.handles = map[registry.Name]Handle{}
	}
	if _, ok := s.handles[h.Name]; !ok {
		s.order = append(s.order, h.Name)
	}
	s.handles[h.Name] = h
}

func (s Set) Get(name registry.Name) (Handle, bool) {
	h, ok := s.handles[name]
	return h, ok
}

// Address returns the address of name or an error when it was not resolved.
func (s Set) Address(name registry.Name) (common.Address, error) {
	h, ok := s.handles[name]
	if !ok {
		return common.Address{}, fmt.Errorf("contract %s not resolved", name)
	}
	return h.Address, nil
}

func (s Set) All() []Handle {
	out := make([]Handle, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.handles[name])
	}
	return out
}

func (s Set) Len() int { return len(s.order) }

func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.All())
}

// Fixed is a Resolver that returns an already-resolved set.
type Fixed Set

func (f Fixed) Resolve(context.Context) (Set, error) { return Set(f), nil }
