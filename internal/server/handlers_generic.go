package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/eternalApril/firefly/internal/resp"
	"github.com/eternalApril/firefly/internal/storage"
)

func ping(ctx *Context) resp.Value {
	if len(ctx.args) == 1 {
		return resp.MakeBulkBytes(ctx.args[0].String)
	}
	if len(ctx.args) > 1 {
		return resp.MakeErrorWrongNumberOfArguments("ping")
	}
	return resp.ValuePong
}

func echo(ctx *Context) resp.Value {
	return resp.MakeBulkBytes(ctx.args[0].String)
}

// set implements SET with the EX, PX, NX, XX and KEEPTTL options.
func set(ctx *Context) resp.Value {
	key := argString(ctx.args[0])
	value := string(ctx.args[1].String)

	var (
		expireAt int64
		keepTTL  bool
		nx, xx   bool
	)
	for i := 2; i < len(ctx.args); i++ {
		switch strings.ToUpper(argString(ctx.args[i])) {
		case "EX", "PX":
			if i+1 >= len(ctx.args) || keepTTL {
				return errSyntax
			}
			n, ok := parseInt(ctx.args[i+1])
			if !ok {
				return errNotInteger
			}
			if n <= 0 {
				return resp.MakeError("ERR invalid expire time in 'set' command")
			}
			unit := int64(1)
			if strings.EqualFold(argString(ctx.args[i]), "EX") {
				unit = 1000
			}
			at, ok := deadlineFrom(ctx.store.Now(), n, unit)
			if !ok {
				return resp.MakeError("ERR invalid expire time in 'set' command")
			}
			expireAt = at
			i++
		case "KEEPTTL":
			if expireAt != 0 {
				return errSyntax
			}
			keepTTL = true
		case "NX":
			nx = true
		case "XX":
			xx = true
		default:
			return errSyntax
		}
	}
	if nx && xx {
		return errSyntax
	}

	exists := ctx.store.Exists(key)
	if nx && exists || xx && !exists {
		return resp.ValueNullBulk
	}

	var err error
	if keepTTL {
		err = ctx.store.StoreValue(key, storage.TypeString, value)
	} else {
		err = ctx.store.Put(key, storage.TypeString, value, expireAt)
	}
	if err != nil {
		return resp.MakeError(err.Error())
	}
	return resp.ValueOK
}

func get(ctx *Context) resp.Value {
	v, t, ok := ctx.store.Get(argString(ctx.args[0]))
	if !ok {
		return resp.ValueNullBulk
	}
	if t != storage.TypeString {
		return errWrongType
	}
	return resp.MakeBulkString(v.(string))
}

func del(ctx *Context) resp.Value {
	var removed int64
	for _, arg := range ctx.args {
		if ctx.store.Delete(argString(arg)) {
			removed++
		}
	}
	return resp.MakeInteger(removed)
}

func exists(ctx *Context) resp.Value {
	var count int64
	for _, arg := range ctx.args {
		if ctx.store.Exists(argString(arg)) {
			count++
		}
	}
	return resp.MakeInteger(count)
}

func typeOf(ctx *Context) resp.Value {
	t, ok := ctx.store.TypeOf(argString(ctx.args[0]))
	if !ok {
		return resp.MakeSimpleString("none")
	}
	return resp.MakeSimpleString(t.Name())
}

func ttl(ctx *Context) resp.Value {
	ms, status := ctx.store.PTTL(argString(ctx.args[0]))
	switch status {
	case storage.TTLNotFound:
		return resp.MakeInteger(-2)
	case storage.TTLNoExpiry:
		return resp.MakeInteger(-1)
	}
	return resp.MakeInteger(ms / 1000)
}

func pttl(ctx *Context) resp.Value {
	ms, status := ctx.store.PTTL(argString(ctx.args[0]))
	switch status {
	case storage.TTLNotFound:
		return resp.MakeInteger(-2)
	case storage.TTLNoExpiry:
		return resp.MakeInteger(-1)
	}
	return resp.MakeInteger(ms)
}

func expire(ctx *Context) resp.Value {
	return expireIn(ctx, "expire", 1000)
}

func pexpire(ctx *Context) resp.Value {
	return expireIn(ctx, "pexpire", 1)
}

// expireIn applies a relative deadline. A non-positive remaining lifetime
// deletes the key immediately instead of scheduling it.
func expireIn(ctx *Context, name string, unitMillis int64) resp.Value {
	key := argString(ctx.args[0])
	n, ok := parseInt(ctx.args[1])
	if !ok {
		return errNotInteger
	}
	at, inRange := deadlineFrom(ctx.store.Now(), n, unitMillis)
	if !inRange {
		return resp.MakeError("ERR invalid expire time in '" + name + "' command")
	}
	if !ctx.store.Exists(key) {
		return resp.ValueZero
	}
	if n <= 0 {
		ctx.store.Delete(key)
		return resp.ValueOne
	}
	ctx.store.SetExpiration(key, at)
	return resp.ValueOne
}

func pexpireat(ctx *Context) resp.Value {
	key := argString(ctx.args[0])
	at, ok := parseInt(ctx.args[1])
	if !ok {
		return errNotInteger
	}
	if !ctx.store.Exists(key) {
		return resp.ValueZero
	}
	if at <= ctx.store.Now() {
		ctx.store.Delete(key)
		return resp.ValueOne
	}
	ctx.store.SetExpiration(key, at)
	return resp.ValueOne
}

func persist(ctx *Context) resp.Value {
	if ctx.store.Persist(argString(ctx.args[0])) {
		return resp.ValueOne
	}
	return resp.ValueZero
}

func keys(ctx *Context) resp.Value {
	names := ctx.store.Keys(argString(ctx.args[0]))
	out := make([]resp.Value, len(names))
	for i, name := range names {
		out[i] = resp.MakeBulkString(name)
	}
	return resp.MakeArray(out)
}

func rename(ctx *Context) resp.Value {
	if !ctx.store.Rename(argString(ctx.args[0]), argString(ctx.args[1])) {
		return errNoSuchKey
	}
	return resp.ValueOK
}

func renamenx(ctx *Context) resp.Value {
	result, ok := ctx.store.RenameNX(argString(ctx.args[0]), argString(ctx.args[1]))
	if !ok {
		return errNoSuchKey
	}
	return resp.MakeInteger(result)
}

func dbsize(ctx *Context) resp.Value {
	return resp.MakeInteger(int64(ctx.store.Len()))
}

func flushall(ctx *Context) resp.Value {
	ctx.store.Flush()
	return resp.ValueOK
}

func save(ctx *Context) resp.Value {
	e := ctx.engine
	if e.snapshot == nil {
		return resp.MakeError("ERR snapshotting is disabled")
	}
	// Already inside the critical section; no extra locking.
	if err := e.snapshot.Save(e.store); err != nil {
		return resp.MakeError("ERR " + err.Error())
	}
	return resp.ValueOK
}

func bgsave(ctx *Context) resp.Value {
	e := ctx.engine
	if e.snapshot == nil {
		return resp.MakeError("ERR snapshotting is disabled")
	}
	// saveSnapshot blocks on the engine mutex until the current command
	// returns, then runs with a consistent view.
	go e.saveSnapshot()
	return resp.MakeSimpleString("Background saving started")
}

func parseInt(v resp.Value) (int64, bool) {
	n, err := strconv.ParseInt(string(v.String), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// deadlineFrom converts a relative lifetime into an absolute ms deadline,
// reporting false when the arithmetic would not fit in int64. Non-positive
// lifetimes pass through; callers treat them as immediate deletion.
func deadlineFrom(now, n, unitMillis int64) (int64, bool) {
	if n <= 0 {
		return now, true
	}
	if n > math.MaxInt64/unitMillis {
		return 0, false
	}
	ms := n * unitMillis
	if ms > math.MaxInt64-now {
		return 0, false
	}
	return now + ms, true
}
