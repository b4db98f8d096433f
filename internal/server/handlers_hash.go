package server

import (
	"github.com/eternalApril/firefly/internal/resp"
	"github.com/eternalApril/firefly/internal/storage"
)

func hashValue(ctx *Context, key string) (map[string]string, bool, *resp.Value) {
	v, t, ok := ctx.store.Get(key)
	if !ok {
		return nil, false, nil
	}
	if t != storage.TypeHash {
		return nil, false, &errWrongType
	}
	return v.(map[string]string), true, nil
}

func hset(ctx *Context) resp.Value {
	if len(ctx.args)%2 != 1 {
		return resp.MakeErrorWrongNumberOfArguments("hset")
	}
	key := argString(ctx.args[0])
	old, _, errv := hashValue(ctx, key)
	if errv != nil {
		return *errv
	}
	// Additions are staged on a copy so a rejected write leaves the
	// resident hash untouched.
	h := make(map[string]string, len(old)+(len(ctx.args)-1)/2)
	for field, v := range old {
		h[field] = v
	}
	var added int64
	for i := 1; i < len(ctx.args); i += 2 {
		field := argString(ctx.args[i])
		if _, ok := h[field]; !ok {
			added++
		}
		h[field] = string(ctx.args[i+1].String)
	}
	if err := ctx.store.StoreValue(key, storage.TypeHash, h); err != nil {
		return resp.MakeError(err.Error())
	}
	return resp.MakeInteger(added)
}

func hget(ctx *Context) resp.Value {
	h, _, errv := hashValue(ctx, argString(ctx.args[0]))
	if errv != nil {
		return *errv
	}
	v, ok := h[argString(ctx.args[1])]
	if !ok {
		return resp.ValueNullBulk
	}
	return resp.MakeBulkString(v)
}

func hdel(ctx *Context) resp.Value {
	key := argString(ctx.args[0])
	h, exists, errv := hashValue(ctx, key)
	if errv != nil {
		return *errv
	}
	if !exists {
		return resp.ValueZero
	}
	var removed int64
	for _, arg := range ctx.args[1:] {
		field := argString(arg)
		if _, ok := h[field]; ok {
			delete(h, field)
			removed++
		}
	}
	if removed == 0 {
		return resp.ValueZero
	}
	if len(h) == 0 {
		ctx.store.Delete(key)
	} else if err := ctx.store.StoreValue(key, storage.TypeHash, h); err != nil {
		return resp.MakeError(err.Error())
	}
	return resp.MakeInteger(removed)
}

func hgetall(ctx *Context) resp.Value {
	h, _, errv := hashValue(ctx, argString(ctx.args[0]))
	if errv != nil {
		return *errv
	}
	out := make([]resp.Value, 0, 2*len(h))
	for field, v := range h {
		out = append(out, resp.MakeBulkString(field), resp.MakeBulkString(v))
	}
	return resp.MakeArray(out)
}

func hexists(ctx *Context) resp.Value {
	h, _, errv := hashValue(ctx, argString(ctx.args[0]))
	if errv != nil {
		return *errv
	}
	if _, ok := h[argString(ctx.args[1])]; ok {
		return resp.ValueOne
	}
	return resp.ValueZero
}

func hlen(ctx *Context) resp.Value {
	h, _, errv := hashValue(ctx, argString(ctx.args[0]))
	if errv != nil {
		return *errv
	}
	return resp.MakeInteger(int64(len(h)))
}
