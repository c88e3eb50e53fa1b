package messaging

import (
	"context"
	"strings"
)

// HandlerFunc handles one routed update.
type HandlerFunc func(ctx context.Context, req *Request) error

// Matcher selects the updates a route accepts.
type Matcher func(u *Update) bool

// Route binds a matcher to a handler. Routes with a Command and a
// Description are published as the bot's menu.
type Route struct {
	Match       Matcher
	Handle      HandlerFunc
	Command     string
	Description string
}

// OnCommand matches "/name" messages.
func OnCommand(name string) Matcher {
	return func(u *Update) bool {
		cmd, _ := u.Command()
		return cmd == name
	}
}

// OnCallback matches button presses with exactly this data.
func OnCallback(data string) Matcher {
	return func(u *Update) bool {
		return u.IsCallback() && u.CallbackData == data
	}
}

// OnCallbackPrefix matches button presses whose data starts with prefix.
func OnCallbackPrefix(prefix string) Matcher {
	return func(u *Update) bool {
		return u.IsCallback() && strings.HasPrefix(u.CallbackData, prefix)
	}
}

// OnText matches plain text messages that are not commands.
func OnText() Matcher {
	return func(u *Update) bool {
		return !u.IsCallback() && u.Text != "" && !strings.HasPrefix(u.Text, "/")
	}
}

// Command builds a menu-visible command route.
func Command(name, description string, h HandlerFunc) Route {
	return Route{Match: OnCommand(name), Handle: h, Command: name, Description: description}
}

// HiddenCommand builds a command route that is left out of the menu.
func HiddenCommand(name string, h HandlerFunc) Route {
	return Route{Match: OnCommand(name), Handle: h, Command: name}
}

func Callback(data string, h HandlerFunc) Route {
	return Route{Match: OnCallback(data), Handle: h}
}

func CallbackPrefix(prefix string, h HandlerFunc) Route {
	return Route{Match: OnCallbackPrefix(prefix), Handle: h}
}

func Text(h HandlerFunc) Route {
	return Route{Match: OnText(), Handle: h}
}

// Router dispatches an update to the first matching route.
type Router struct {
	routes []Route
}

func NewRouter(routes []Route) *Router {
	return &Router{routes: routes}
}

// Dispatch runs the first route that matches. It reports whether any did.
func (r *Router) Dispatch(ctx context.Context, req *Request) (bool, error) {
	for _, rt := range r.routes {
		if rt.Match != nil && rt.Match(req.Update) {
			return true, rt.Handle(ctx, req)
		}
	}
	return false, nil
}

// MenuCommands returns the routes that belong in the command menu.
func (r *Router) MenuCommands() []Route {
	var out []Route
	for _, rt := range r.routes {
		if rt.Command != "" && rt.Description != "" {
			out = append(out, rt)
		}
	}
	return out
}
