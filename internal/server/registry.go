package server

import (
	"fmt"
	"strings"

	"github.com/eternalApril/firefly/internal/resp"
)

// commandMeta describes a command for arity validation and COMMAND
// introspection. Arity follows the usual convention: positive values are
// exact (command name included), negative values are a minimum.
type commandMeta struct {
	summary string
	arity   int
}

var commandTable = map[string]commandMeta{
	"PING":      {arity: -1, summary: "Returns PONG, or echoes the given message."},
	"ECHO":      {arity: 2, summary: "Returns the given message."},
	"SET":       {arity: -3, summary: "Sets a key to a string value, with optional expiration and existence flags."},
	"GET":       {arity: 2, summary: "Returns the string value of a key."},
	"DEL":       {arity: -2, summary: "Removes one or more keys."},
	"EXISTS":    {arity: -2, summary: "Counts how many of the given keys exist."},
	"TYPE":      {arity: 2, summary: "Returns the type of the value stored at a key."},
	"TTL":       {arity: 2, summary: "Returns the remaining time to live of a key, in seconds."},
	"PTTL":      {arity: 2, summary: "Returns the remaining time to live of a key, in milliseconds."},
	"EXPIRE":    {arity: 3, summary: "Sets a key's time to live in seconds."},
	"PEXPIRE":   {arity: 3, summary: "Sets a key's time to live in milliseconds."},
	"PEXPIREAT": {arity: 3, summary: "Sets the expiration of a key to an absolute unix time in milliseconds."},
	"PERSIST":   {arity: 2, summary: "Removes the expiration from a key."},
	"KEYS":      {arity: 2, summary: "Returns all key names matching a glob pattern."},
	"RENAME":    {arity: 3, summary: "Renames a key, overwriting the destination."},
	"RENAMENX":  {arity: 3, summary: "Renames a key only if the destination does not exist."},
	"DBSIZE":    {arity: 1, summary: "Returns the number of keys in the database."},
	"FLUSHALL":  {arity: 1, summary: "Removes all keys."},
	"SAVE":      {arity: 1, summary: "Synchronously writes a snapshot to disk."},
	"BGSAVE":    {arity: 1, summary: "Writes a snapshot to disk in the background."},
	"COMMAND":   {arity: -1, summary: "Returns details about the supported commands."},

	"APPEND": {arity: 3, summary: "Appends to the string value of a key and returns the new length."},
	"STRLEN": {arity: 2, summary: "Returns the length of the string value of a key."},
	"INCR":   {arity: 2, summary: "Increments the integer value of a key by one."},
	"DECR":   {arity: 2, summary: "Decrements the integer value of a key by one."},
	"INCRBY": {arity: 3, summary: "Increments the integer value of a key by the given amount."},
	"DECRBY": {arity: 3, summary: "Decrements the integer value of a key by the given amount."},

	"HSET":    {arity: -4, summary: "Sets one or more fields of a hash."},
	"HGET":    {arity: 3, summary: "Returns the value of a hash field."},
	"HDEL":    {arity: -3, summary: "Removes one or more fields from a hash."},
	"HGETALL": {arity: 2, summary: "Returns all fields and values of a hash."},
	"HEXISTS": {arity: 3, summary: "Checks whether a hash field exists."},
	"HLEN":    {arity: 2, summary: "Returns the number of fields in a hash."},

	"LPUSH":  {arity: -3, summary: "Prepends one or more elements to a list."},
	"RPUSH":  {arity: -3, summary: "Appends one or more elements to a list."},
	"LPOP":   {arity: 2, summary: "Removes and returns the first element of a list."},
	"RPOP":   {arity: 2, summary: "Removes and returns the last element of a list."},
	"LLEN":   {arity: 2, summary: "Returns the length of a list."},
	"LRANGE": {arity: 4, summary: "Returns a range of elements from a list."},

	"SADD":      {arity: -3, summary: "Adds one or more members to a set."},
	"SREM":      {arity: -3, summary: "Removes one or more members from a set."},
	"SISMEMBER": {arity: 3, summary: "Checks whether a value is a member of a set."},
	"SMEMBERS":  {arity: 2, summary: "Returns all members of a set."},
	"SCARD":     {arity: 2, summary: "Returns the number of members in a set."},

	"MULTI":   {arity: 1, summary: "Starts a transaction block."},
	"EXEC":    {arity: 1, summary: "Executes all queued commands of a transaction."},
	"DISCARD": {arity: 1, summary: "Discards a transaction block."},
	"WATCH":   {arity: -2, summary: "Marks keys to be watched for conditional execution of a transaction."},
	"UNWATCH": {arity: 1, summary: "Forgets all watched keys."},
}

// checkArity validates the argument count for a known command. argc counts
// arguments excluding the command name.
func checkArity(name string, argc int) error {
	meta, ok := commandTable[name]
	if !ok {
		return fmt.Errorf("ERR unknown command '%s'", strings.ToLower(name))
	}
	n := argc + 1
	if meta.arity >= 0 {
		if n != meta.arity {
			return fmt.Errorf("ERR wrong number of arguments for '%s' command", strings.ToLower(name))
		}
		return nil
	}
	if n < -meta.arity {
		return fmt.Errorf("ERR wrong number of arguments for '%s' command", strings.ToLower(name))
	}
	return nil
}

// cmd implements COMMAND with the COUNT and DOCS subcommands.
func cmd(ctx *Context) resp.Value {
	if len(ctx.args) == 0 {
		return commandSummaries()
	}
	switch strings.ToUpper(argString(ctx.args[0])) {
	case "COUNT":
		return resp.MakeInteger(int64(len(commandTable)))
	case "DOCS":
		return commandSummaries()
	default:
		return resp.MakeError(fmt.Sprintf("ERR unknown subcommand '%s'", argString(ctx.args[0])))
	}
}

func commandSummaries() resp.Value {
	docs := make([]resp.Value, 0, 2*len(commandTable))
	for name, meta := range commandTable {
		docs = append(docs,
			resp.MakeBulkString(strings.ToLower(name)),
			resp.MakeArray([]resp.Value{
				resp.MakeBulkString("summary"),
				resp.MakeBulkString(meta.summary),
				resp.MakeBulkString("arity"),
				resp.MakeInteger(int64(meta.arity)),
			}))
	}
	return resp.MakeArray(docs)
}
