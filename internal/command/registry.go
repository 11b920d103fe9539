package command

import (
	"fmt"
	"sort"
	"strings"

	"github.com/lojhan/minikv/internal/resp"
)

type Handler func(args []string) resp.Value

// Registry maps case-insensitive command names to handlers.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

func (r *Registry) Register(name string, handler Handler) {
	r.handlers[strings.ToUpper(name)] = handler
}

func (r *Registry) Lookup(name string) (Handler, bool) {
	handler, ok := r.handlers[strings.ToUpper(name)]
	return handler, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs args[0] with the remaining arguments.
func (r *Registry) Execute(args []string) resp.Value {
	if len(args) == 0 {
		return resp.ErrorValue("ERR empty command")
	}

	handler, ok := r.Lookup(args[0])
	if !ok {
		return resp.ErrorValue(fmt.Sprintf("ERR unknown command '%s'", args[0]))
	}
	return handler(args[1:])
}

func wrongArgs(name string) resp.Value {
	return resp.ErrorValue(fmt.Sprintf("ERR wrong number of arguments for '%s' command", name))
}
