package server

import (
	"github.com/eternalApril/firefly/internal/resp"
	"github.com/eternalApril/firefly/internal/storage"
)

func listValue(ctx *Context, key string) ([]string, bool, *resp.Value) {
	v, t, ok := ctx.store.Get(key)
	if !ok {
		return nil, false, nil
	}
	if t != storage.TypeList {
		return nil, false, &errWrongType
	}
	return v.([]string), true, nil
}

func lpush(ctx *Context) resp.Value {
	return push(ctx, true)
}

func rpush(ctx *Context) resp.Value {
	return push(ctx, false)
}

func push(ctx *Context, front bool) resp.Value {
	key := argString(ctx.args[0])
	list, _, errv := listValue(ctx, key)
	if errv != nil {
		return *errv
	}
	for _, arg := range ctx.args[1:] {
		if front {
			list = append([]string{string(arg.String)}, list...)
		} else {
			list = append(list, string(arg.String))
		}
	}
	if err := ctx.store.StoreValue(key, storage.TypeList, list); err != nil {
		return resp.MakeError(err.Error())
	}
	return resp.MakeInteger(int64(len(list)))
}

func lpop(ctx *Context) resp.Value {
	return pop(ctx, true)
}

func rpop(ctx *Context) resp.Value {
	return pop(ctx, false)
}

func pop(ctx *Context, front bool) resp.Value {
	key := argString(ctx.args[0])
	list, exists, errv := listValue(ctx, key)
	if errv != nil {
		return *errv
	}
	if !exists || len(list) == 0 {
		return resp.ValueNullBulk
	}
	var out string
	if front {
		out, list = list[0], list[1:]
	} else {
		out, list = list[len(list)-1], list[:len(list)-1]
	}
	if len(list) == 0 {
		ctx.store.Delete(key)
	} else if err := ctx.store.StoreValue(key, storage.TypeList, list); err != nil {
		return resp.MakeError(err.Error())
	}
	return resp.MakeBulkString(out)
}

func llen(ctx *Context) resp.Value {
	list, _, errv := listValue(ctx, argString(ctx.args[0]))
	if errv != nil {
		return *errv
	}
	return resp.MakeInteger(int64(len(list)))
}

func lrange(ctx *Context) resp.Value {
	list, _, errv := listValue(ctx, argString(ctx.args[0]))
	if errv != nil {
		return *errv
	}
	start, ok1 := parseInt(ctx.args[1])
	stop, ok2 := parseInt(ctx.args[2])
	if !ok1 || !ok2 {
		return errNotInteger
	}
	n := int64(len(list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return resp.ValueEmptyArray
	}
	out := make([]resp.Value, 0, stop-start+1)
	for _, item := range list[start : stop+1] {
		out = append(out, resp.MakeBulkString(item))
	}
	return resp.MakeArray(out)
}
