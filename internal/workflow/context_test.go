package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithEitherDone(t *testing.T) {
	t.Run("first parent", func(t *testing.T) {
		a, cancelA := context.WithCancel(context.Background())
		ctx, cancel := WithEitherDone(a, context.Background())
		defer cancel()

		cancelA()
		<-ctx.Done()
		assert.ErrorIs(t, ctx.Err(), context.Canceled)
	})

	t.Run("second parent", func(t *testing.T) {
		b, cancelB := context.WithCancel(context.Background())
		ctx, cancel := WithEitherDone(context.Background(), b)
		defer cancel()

		cancelB()
		<-ctx.Done()
	})

	t.Run("released", func(t *testing.T) {
		ctx, cancel := WithEitherDone(context.Background(), context.Background())
		cancel()
		assert.Error(t, ctx.Err())
	})
}
