package bot

import (
	"strings"

	"voice-credit-bot/internal/handler"
)

// Router maps prefixed message commands to handlers.
type Router struct {
	prefix     string
	middleware []handler.MiddlewareFunc
	routes     map[string]handler.HandlerFunc
}

// NewRouter creates a Router for commands starting with prefix.
func NewRouter(prefix string) *Router {
	if prefix == "" {
		prefix = "!"
	}
	return &Router{prefix: prefix, routes: make(map[string]handler.HandlerFunc)}
}

// Use adds middleware run around every command, outermost first.
func (r *Router) Use(mw ...handler.MiddlewareFunc) {
	r.middleware = append(r.middleware, mw...)
}

// Handle registers a command. Route middleware runs inside the router's.
func (r *Router) Handle(command string, h handler.HandlerFunc, mw ...handler.MiddlewareFunc) {
	r.routes[strings.ToLower(command)] = chain(h, mw)
}

// Group returns a registration scope sharing middleware.
func (r *Router) Group(mw ...handler.MiddlewareFunc) *Group {
	return &Group{router: r, middleware: mw}
}

// Parse splits a message into command and arguments. ok is false for
// messages that are not commands.
func (r *Router) Parse(content string) (command string, args []string, ok bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, r.prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, r.prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

// Dispatch runs the handler for req.Command. It reports whether the
// command is known.
func (r *Router) Dispatch(req *handler.Request) (bool, error) {
	h, ok := r.routes[req.Command]
	if !ok {
		return false, nil
	}
	return true, chain(h, r.middleware)(req)
}

// Group registers commands behind shared middleware.
type Group struct {
	router     *Router
	middleware []handler.MiddlewareFunc
}

// Use adds middleware to commands registered after the call.
func (g *Group) Use(mw ...handler.MiddlewareFunc) {
	g.middleware = append(g.middleware, mw...)
}

// Handle registers a command behind the group's middleware.
func (g *Group) Handle(command string, h handler.HandlerFunc) {
	mw := make([]handler.MiddlewareFunc, len(g.middleware))
	copy(mw, g.middleware)
	g.router.Handle(command, h, mw...)
}

func chain(h handler.HandlerFunc, mw []handler.MiddlewareFunc) handler.HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return h
}
