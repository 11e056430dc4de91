package sync

import (
	"context"
	"encoding/json"
	"fmt"
)

// Mutator is one registered, named state-change function. Mutators are
// expected to be deterministic functions of the visible state and their
// arguments: the engine may re-execute them during transaction retries.
type Mutator interface {
	Apply(ctx context.Context, tx *Transaction, args json.RawMessage) error
}

// MutatorFunc adapts a plain function to the Mutator interface
type MutatorFunc func(ctx context.Context, tx *Transaction, args json.RawMessage) error

func (f MutatorFunc) Apply(ctx context.Context, tx *Transaction, args json.RawMessage) error {
	return f(ctx, tx, args)
}

// Mutators maps mutation names to their implementations. An unknown name
// is a recognized, non-fatal outcome at apply time, not a registration
// error.
type Mutators map[string]Mutator

type kvArgs struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// DefaultMutators returns the generic key-value mutators: "put" stores
// args.value under args.key, "del" removes args.key. Embedding applications
// replace or extend these with their own domain mutators.
func DefaultMutators() Mutators {
	return Mutators{
		"put": MutatorFunc(func(ctx context.Context, tx *Transaction, args json.RawMessage) error {
			var a kvArgs
			if err := json.Unmarshal(args, &a); err != nil {
				return fmt.Errorf("failed to parse put args: %w", err)
			}
			if a.Key == "" {
				return fmt.Errorf("put requires a key")
			}
			if a.Value == nil {
				// A nil value would read as a delete downstream.
				return fmt.Errorf("put requires a value")
			}
			return tx.Put(ctx, a.Key, a.Value)
		}),
		"del": MutatorFunc(func(ctx context.Context, tx *Transaction, args json.RawMessage) error {
			var a kvArgs
			if err := json.Unmarshal(args, &a); err != nil {
				return fmt.Errorf("failed to parse del args: %w", err)
			}
			if a.Key == "" {
				return fmt.Errorf("del requires a key")
			}
			_, err := tx.Del(ctx, a.Key)
			return err
		}),
	}
}
