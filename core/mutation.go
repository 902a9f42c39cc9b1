package core

import "context"

// Mutation is an optimistic state change: Apply runs the local change
// immediately, Confirm checks it against the server, and Rollback reverts
// the local change when confirmation fails. It replaces the ad hoc
// copy-mutate-catch-restore handlers scattered through interactive screens.
type Mutation struct {
	Apply    func()
	Confirm  func(ctx context.Context) error
	Rollback func()
}

// Run applies the mutation and returns Confirm's error, after rolling back
// the local change if confirmation failed.
func (m Mutation) Run(ctx context.Context) error {
	if m.Apply != nil {
		m.Apply()
	}
	if m.Confirm == nil {
		return nil
	}
	if err := m.Confirm(ctx); err != nil {
		if m.Rollback != nil {
			m.Rollback()
		}
		return err
	}
	return nil
}
