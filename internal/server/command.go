package server

import (
	"github.com/eternalApril/firefly/internal/resp"
	"github.com/eternalApril/firefly/internal/storage"
)

// Context carries one command invocation: its arguments (command name
// excluded) and the handles the handler may touch.
type Context struct {
	args   []resp.Value
	store  *storage.Keyspace
	engine *Engine
}

type Command interface {
	Execute(ctx *Context) resp.Value
}

type CommandFunc func(ctx *Context) resp.Value

func (c CommandFunc) Execute(ctx *Context) resp.Value {
	return c(ctx)
}

// Shared error replies. The data-type handlers enforce type compatibility
// themselves; the keyspace never does.
var (
	errWrongType  = resp.MakeError("WRONGTYPE Operation against a key holding the wrong kind of value")
	errNotInteger = resp.MakeError("ERR value is not an integer or out of range")
	errNoSuchKey  = resp.MakeError("ERR no such key")
	errSyntax     = resp.MakeError("ERR syntax error")
)
