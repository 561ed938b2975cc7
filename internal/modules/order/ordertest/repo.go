// README: In-memory order repository with the same conditional-write semantics as the pgx store.
package ordertest

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"fooddash/internal/modules/order"
	"fooddash/internal/types"
)

type Repo struct {
	mu     sync.Mutex
	orders map[types.ID]*order.Order
	// Delay runs inside Claim before the lock is taken, widening race windows in tests.
	Delay func()
}

func NewRepo() *Repo {
	return &Repo{orders: map[types.ID]*order.Order{}}
}

func (r *Repo) Create(_ context.Context, o *order.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = clone(o)
	return nil
}

func (r *Repo) Get(_ context.Context, id types.ID) (*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return clone(o), nil
}

func (r *Repo) ApplyTransition(_ context.Context, m order.Mutation) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.swap(m, false), nil
}

func (r *Repo) Claim(_ context.Context, m order.Mutation) (bool, error) {
	if r.Delay != nil {
		r.Delay()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.swap(m, true), nil
}

func (r *Repo) swap(m order.Mutation, unassigned bool) bool {
	o, ok := r.orders[m.OrderID]
	if !ok || o.Status != m.From || o.StatusVersion != m.Version {
		return false
	}
	if unassigned && o.DriverID != nil {
		return false
	}
	applied := clone(o)
	order.ApplyMutation(applied, m)
	r.orders[m.OrderID] = applied
	return true
}

func (r *Repo) SaveValidation(_ context.Context, id types.ID, v *order.Validation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Items = v.Items
	o.Totals = v.Totals
	o.Warnings = v.Warnings
	o.PriceManipulated = v.PriceManipulated
	o.ServerValidated = true
	return nil
}

func (r *Repo) SaveRating(_ context.Context, id types.ID, rt order.Rating) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok || o.Status != order.StatusDelivered || o.Rating != nil {
		return false, nil
	}
	o.Rating = &rt
	return true, nil
}

func (r *Repo) ListByStatus(_ context.Context, status order.Status, limit int) ([]*order.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*order.Order
	for _, o := range r.orders {
		if o.Status == status {
			out = append(out, clone(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Put stores o as-is, bypassing the lifecycle. Used to seed fixtures.
func (r *Repo) Put(o *order.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.ID] = clone(o)
}

// clone deep-copies through JSON so callers never share slices or maps with the repo.
func clone(o *order.Order) *order.Order {
	b, err := json.Marshal(o)
	if err != nil {
		panic(err)
	}
	var out order.Order
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return &out
}
