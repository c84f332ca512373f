package middleware

import (
	"github.com/danielgtaylor/huma/v2"
)

// Func мидлварь huma
type Func = func(ctx huma.Context, next func(huma.Context))

// Container общие мидлвари, которые получает каждая группа операций
type Container struct {
	base huma.Middlewares
}

// NewContainer создает контейнер с общими мидлварями (логирование и т.п.)
func NewContainer(base ...Func) *Container {
	c := &Container{base: make(huma.Middlewares, 0, len(base))}
	for _, mw := range base {
		c.base = append(c.base, mw)
	}
	return c
}

// Chain возвращает новый список: общие мидлвари, затем extra в порядке передачи.
// Список контейнера не меняется, поэтому группы операций не делят срез.
func (c *Container) Chain(extra ...Func) huma.Middlewares {
	out := make(huma.Middlewares, 0, len(c.base)+len(extra))
	out = append(out, c.base...)
	for _, mw := range extra {
		out = append(out, mw)
	}
	return out
}
