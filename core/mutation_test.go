package core

import (
	"context"
	"testing"

	"github.com/pkg/errors"
)

func TestMutationRun(t *testing.T) {
	t.Run("confirmed", func(t *testing.T) {
		value := "old"
		m := Mutation{
			Apply:    func() { value = "new" },
			Confirm:  func(context.Context) error { return nil },
			Rollback: func() { value = "old" },
		}
		if err := m.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if value != "new" {
			t.Errorf("value = %q, want applied change kept", value)
		}
	})

	t.Run("rolled back", func(t *testing.T) {
		confirmErr := errors.New("server said no")
		value := "old"
		m := Mutation{
			Apply:    func() { value = "new" },
			Confirm:  func(context.Context) error { return confirmErr },
			Rollback: func() { value = "old" },
		}
		if err := m.Run(context.Background()); err != confirmErr {
			t.Fatalf("Run() error = %v, want confirm error", err)
		}
		if value != "old" {
			t.Errorf("value = %q, want change rolled back", value)
		}
	})

	t.Run("no confirm", func(t *testing.T) {
		applied := false
		m := Mutation{Apply: func() { applied = true }}
		if err := m.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if !applied {
			t.Error("Apply not run")
		}
	})
}
