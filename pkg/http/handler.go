package http

import (
	"reflect"

	"github.com/labstack/echo/v4"
)

// Handler mounts a group of routes on the shared Echo instance. The
// structure API and the signal websocket hub both implement it.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(e *echo.Echo)

func (f HandlerFunc) RegisterRoutes(e *echo.Echo) { f(e) }

// registerAll mounts every handler and returns how many were mounted.
// Disabled components arrive as typed nil pointers and are skipped.
func registerAll(e *echo.Echo, handlers []Handler) int {
	n := 0
	for _, h := range handlers {
		if isNil(h) {
			continue
		}
		h.RegisterRoutes(e)
		n++
	}
	return n
}

func isNil(h Handler) bool {
	if h == nil {
		return true
	}
	v := reflect.ValueOf(h)
	switch v.Kind() {
	case reflect.Ptr, reflect.Func, reflect.Map, reflect.Interface:
		return v.IsNil()
	}
	return false
}
