// README: Order state graph plus the role permission table for requested statuses.
package order

import (
	"errors"
	"fmt"
	"slices"

	"fooddash/internal/types"
)

// AllowedTransitions represents the order state flow (diagram) as code.
var AllowedTransitions = map[Status][]Status{
	StatusCreated:         {StatusConfirmed, StatusCancelled},
	StatusConfirmed:       {StatusPreparing, StatusCancelled},
	StatusPreparing:       {StatusReady, StatusCancelled},
	StatusReady:           {StatusSearchingDriver},
	StatusSearchingDriver: {StatusAssigned, StatusCancelled},
	StatusAssigned:        {StatusPickedUp, StatusCancelled},
	StatusPickedUp:        {StatusOnTheWay},
	StatusOnTheWay:        {StatusDelivered},
}

func CanTransition(from, to Status) bool {
	return slices.Contains(AllowedTransitions[from], to)
}

// requestableBy lists the roles allowed to request each target status.
var requestableBy = map[Status][]types.Role{
	StatusConfirmed:       {types.RoleMerchant, types.RoleAdmin},
	StatusPreparing:       {types.RoleMerchant, types.RoleAdmin},
	StatusReady:           {types.RoleMerchant, types.RoleAdmin},
	StatusSearchingDriver: {types.RoleSystem, types.RoleAdmin},
	StatusAssigned:        {types.RoleDriver},
	StatusPickedUp:        {types.RoleDriver, types.RoleAdmin},
	StatusOnTheWay:        {types.RoleDriver, types.RoleAdmin},
	StatusDelivered:       {types.RoleDriver, types.RoleAdmin},
	StatusCancelled:       {types.RoleClient, types.RoleMerchant, types.RoleAdmin, types.RoleSystem},
}

// cancellableFrom narrows cancellation for parties of the order. Roles not listed may
// cancel from any state the graph allows.
var cancellableFrom = map[types.Role][]Status{
	types.RoleClient:   {StatusCreated, StatusConfirmed, StatusPreparing, StatusSearchingDriver},
	types.RoleMerchant: {StatusCreated, StatusConfirmed, StatusPreparing},
}

func requestable(to Status, role types.Role) bool {
	return slices.Contains(requestableBy[to], role)
}

var ErrInvalidTransition = errors.New("invalid status transition")

// TransitionError reports a rejected (from, to) request and who asked for it.
type TransitionError struct {
	From Status
	To   Status
	Role types.Role
}

func (e *TransitionError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
	}
	return fmt.Sprintf("invalid status transition %s -> %s requested by %s", e.From, e.To, e.Role)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Authorize checks both the graph edge and the requesting role.
func Authorize(from, to Status, role types.Role) error {
	if !CanTransition(from, to) {
		return &TransitionError{From: from, To: to, Role: role}
	}
	if !requestable(to, role) {
		return &TransitionError{From: from, To: to, Role: role}
	}
	if to == StatusCancelled {
		if allowed, restricted := cancellableFrom[role]; restricted && !slices.Contains(allowed, from) {
			return &TransitionError{From: from, To: to, Role: role}
		}
	}
	return nil
}
