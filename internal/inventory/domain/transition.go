package domain

import "github.com/medlan/medlan-backend/pkg/errors"

// transitionTable maps a status and an action to the resulting status.
// Pairs that are not listed are rejected.
type transitionTable[S ~string, A ~string] map[S]map[A]S

func (t transitionTable[S, A]) next(entity string, from S, action A) (S, error) {
	if to, ok := t[from][action]; ok {
		return to, nil
	}
	return from, errors.InvalidStateTransition(entity, string(from), string(action))
}

func (t transitionTable[S, A]) allows(from S, action A) bool {
	_, ok := t[from][action]
	return ok
}
