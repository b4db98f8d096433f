package server

import (
	"math"
	"strconv"

	"github.com/eternalApril/firefly/internal/resp"
	"github.com/eternalApril/firefly/internal/storage"
)

// stringValue fetches key as a string, distinguishing absence from a type
// clash. The error value is non-nil only for the clash.
func stringValue(ctx *Context, key string) (string, bool, *resp.Value) {
	v, t, ok := ctx.store.Get(key)
	if !ok {
		return "", false, nil
	}
	if t != storage.TypeString {
		return "", false, &errWrongType
	}
	return v.(string), true, nil
}

func appendCmd(ctx *Context) resp.Value {
	key := argString(ctx.args[0])
	current, _, errv := stringValue(ctx, key)
	if errv != nil {
		return *errv
	}
	next := current + string(ctx.args[1].String)
	if err := ctx.store.StoreValue(key, storage.TypeString, next); err != nil {
		return resp.MakeError(err.Error())
	}
	return resp.MakeInteger(int64(len(next)))
}

func strlen(ctx *Context) resp.Value {
	s, _, errv := stringValue(ctx, argString(ctx.args[0]))
	if errv != nil {
		return *errv
	}
	return resp.MakeInteger(int64(len(s)))
}

func incr(ctx *Context) resp.Value {
	return incrementBy(ctx, argString(ctx.args[0]), 1)
}

func decr(ctx *Context) resp.Value {
	return incrementBy(ctx, argString(ctx.args[0]), -1)
}

func incrby(ctx *Context) resp.Value {
	delta, ok := parseInt(ctx.args[1])
	if !ok {
		return errNotInteger
	}
	return incrementBy(ctx, argString(ctx.args[0]), delta)
}

func decrby(ctx *Context) resp.Value {
	delta, ok := parseInt(ctx.args[1])
	if !ok {
		return errNotInteger
	}
	// MinInt64 has no int64 negation; any decrement by it overflows.
	if delta == math.MinInt64 {
		return resp.MakeError("ERR increment or decrement would overflow")
	}
	return incrementBy(ctx, argString(ctx.args[0]), -delta)
}

// incrementBy treats an absent key as 0, the usual counter bootstrap.
func incrementBy(ctx *Context, key string, delta int64) resp.Value {
	current, exists, errv := stringValue(ctx, key)
	if errv != nil {
		return *errv
	}
	var n int64
	if exists {
		var err error
		n, err = strconv.ParseInt(current, 10, 64)
		if err != nil {
			return errNotInteger
		}
	}
	if delta > 0 && n > math.MaxInt64-delta || delta < 0 && n < math.MinInt64-delta {
		return resp.MakeError("ERR increment or decrement would overflow")
	}
	n += delta
	if err := ctx.store.StoreValue(key, storage.TypeString, strconv.FormatInt(n, 10)); err != nil {
		return resp.MakeError(err.Error())
	}
	return resp.MakeInteger(n)
}
