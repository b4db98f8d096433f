package server

import (
	"github.com/eternalApril/firefly/internal/resp"
	"github.com/eternalApril/firefly/internal/storage"
)

func setValue(ctx *Context, key string) (map[string]struct{}, bool, *resp.Value) {
	v, t, ok := ctx.store.Get(key)
	if !ok {
		return nil, false, nil
	}
	if t != storage.TypeSet {
		return nil, false, &errWrongType
	}
	return v.(map[string]struct{}), true, nil
}

func sadd(ctx *Context) resp.Value {
	key := argString(ctx.args[0])
	old, _, errv := setValue(ctx, key)
	if errv != nil {
		return *errv
	}
	// Additions are staged on a copy so a rejected write leaves the
	// resident set untouched.
	s := make(map[string]struct{}, len(old)+len(ctx.args)-1)
	for member := range old {
		s[member] = struct{}{}
	}
	var added int64
	for _, arg := range ctx.args[1:] {
		member := string(arg.String)
		if _, ok := s[member]; !ok {
			s[member] = struct{}{}
			added++
		}
	}
	if err := ctx.store.StoreValue(key, storage.TypeSet, s); err != nil {
		return resp.MakeError(err.Error())
	}
	return resp.MakeInteger(added)
}

func srem(ctx *Context) resp.Value {
	key := argString(ctx.args[0])
	s, exists, errv := setValue(ctx, key)
	if errv != nil {
		return *errv
	}
	if !exists {
		return resp.ValueZero
	}
	var removed int64
	for _, arg := range ctx.args[1:] {
		member := string(arg.String)
		if _, ok := s[member]; ok {
			delete(s, member)
			removed++
		}
	}
	if removed == 0 {
		return resp.ValueZero
	}
	if len(s) == 0 {
		ctx.store.Delete(key)
	} else if err := ctx.store.StoreValue(key, storage.TypeSet, s); err != nil {
		return resp.MakeError(err.Error())
	}
	return resp.MakeInteger(removed)
}

func sismember(ctx *Context) resp.Value {
	s, _, errv := setValue(ctx, argString(ctx.args[0]))
	if errv != nil {
		return *errv
	}
	if _, ok := s[argString(ctx.args[1])]; ok {
		return resp.ValueOne
	}
	return resp.ValueZero
}

func smembers(ctx *Context) resp.Value {
	s, _, errv := setValue(ctx, argString(ctx.args[0]))
	if errv != nil {
		return *errv
	}
	out := make([]resp.Value, 0, len(s))
	for member := range s {
		out = append(out, resp.MakeBulkString(member))
	}
	return resp.MakeArray(out)
}

func scard(ctx *Context) resp.Value {
	s, _, errv := setValue(ctx, argString(ctx.args[0]))
	if errv != nil {
		return *errv
	}
	return resp.MakeInteger(int64(len(s)))
}
