package middleware

import (
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/stretchr/testify/assert"
)

func TestContainer_Chain(t *testing.T) {
	var calls []string
	mw := func(name string) Func {
		return func(ctx huma.Context, next func(huma.Context)) {
			calls = append(calls, name)
			next(ctx)
		}
	}

	c := NewContainer(mw("logger"))
	public := c.Chain()
	private := c.Chain(mw("auth"))

	assert.Len(t, public, 1)
	assert.Len(t, private, 2)

	private.Handler(func(huma.Context) { calls = append(calls, "handler") })(nil)
	assert.Equal(t, []string{"logger", "auth", "handler"}, calls)

	// добавление в одну группу не влияет на другую
	calls = nil
	public.Handler(func(huma.Context) { calls = append(calls, "handler") })(nil)
	assert.Equal(t, []string{"logger", "handler"}, calls)
}
