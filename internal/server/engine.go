package server

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eternalApril/firefly/internal/config"
	"github.com/eternalApril/firefly/internal/expiry"
	"github.com/eternalApril/firefly/internal/metrics"
	"github.com/eternalApril/firefly/internal/persistence"
	"github.com/eternalApril/firefly/internal/resp"
	"github.com/eternalApril/firefly/internal/storage"
	"github.com/eternalApril/firefly/internal/tx"
)

// Engine owns the keyspace and dispatches commands. All command execution
// runs under a single mutex, so every handler observes and leaves a fully
// consistent keyspace; a transaction holds the mutex across its whole batch.
type Engine struct {
	commands map[string]Command
	store    *storage.Keyspace
	expiry   *expiry.Manager
	snapshot *persistence.Snapshotter
	cfg      *config.Config
	logger   *zap.Logger

	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewEngine(store *storage.Keyspace, mgr *expiry.Manager, cfg *config.Config, logger *zap.Logger) *Engine {
	e := &Engine{
		commands: make(map[string]Command),
		store:    store,
		expiry:   mgr,
		cfg:      cfg,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
	e.registerCommands()

	if cfg.Snapshot.Enabled {
		e.snapshot = persistence.NewSnapshotter(cfg.Snapshot.Filename, logger)
		if err := e.snapshot.Load(store); err != nil {
			logger.Warn("failed to load snapshot", zap.Error(err))
		}
		if cfg.Snapshot.Interval != "" {
			e.startAutoSave()
		}
	}
	if cfg.GC.Enabled && mgr != nil {
		e.startExpiryLoop()
	}
	return e
}

func (e *Engine) registerCommands() {
	e.register("PING", CommandFunc(ping))
	e.register("ECHO", CommandFunc(echo))
	e.register("SET", CommandFunc(set))
	e.register("GET", CommandFunc(get))
	e.register("DEL", CommandFunc(del))
	e.register("EXISTS", CommandFunc(exists))
	e.register("TYPE", CommandFunc(typeOf))
	e.register("TTL", CommandFunc(ttl))
	e.register("PTTL", CommandFunc(pttl))
	e.register("EXPIRE", CommandFunc(expire))
	e.register("PEXPIRE", CommandFunc(pexpire))
	e.register("PEXPIREAT", CommandFunc(pexpireat))
	e.register("PERSIST", CommandFunc(persist))
	e.register("KEYS", CommandFunc(keys))
	e.register("RENAME", CommandFunc(rename))
	e.register("RENAMENX", CommandFunc(renamenx))
	e.register("DBSIZE", CommandFunc(dbsize))
	e.register("FLUSHALL", CommandFunc(flushall))
	e.register("SAVE", CommandFunc(save))
	e.register("BGSAVE", CommandFunc(bgsave))
	e.register("COMMAND", CommandFunc(cmd))

	e.register("APPEND", CommandFunc(appendCmd))
	e.register("STRLEN", CommandFunc(strlen))
	e.register("INCR", CommandFunc(incr))
	e.register("DECR", CommandFunc(decr))
	e.register("INCRBY", CommandFunc(incrby))
	e.register("DECRBY", CommandFunc(decrby))

	e.register("HSET", CommandFunc(hset))
	e.register("HGET", CommandFunc(hget))
	e.register("HDEL", CommandFunc(hdel))
	e.register("HGETALL", CommandFunc(hgetall))
	e.register("HEXISTS", CommandFunc(hexists))
	e.register("HLEN", CommandFunc(hlen))

	e.register("LPUSH", CommandFunc(lpush))
	e.register("RPUSH", CommandFunc(rpush))
	e.register("LPOP", CommandFunc(lpop))
	e.register("RPOP", CommandFunc(rpop))
	e.register("LLEN", CommandFunc(llen))
	e.register("LRANGE", CommandFunc(lrange))

	e.register("SADD", CommandFunc(sadd))
	e.register("SREM", CommandFunc(srem))
	e.register("SISMEMBER", CommandFunc(sismember))
	e.register("SMEMBERS", CommandFunc(smembers))
	e.register("SCARD", CommandFunc(scard))
}

func (e *Engine) register(name string, c Command) {
	e.commands[name] = c
}

// Validate performs the statically decidable checks for a command: that it
// exists and that its argument count fits. Transactions use it at queue time
// so a bad queued command aborts the EXEC instead of failing halfway through.
func (e *Engine) Validate(name string, argc int) error {
	return checkArity(name, argc)
}

// Execute runs a single command inside the engine critical section.
func (e *Engine) Execute(name string, args []resp.Value) resp.Value {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.executeLocked(name, args)
}

func (e *Engine) executeLocked(name string, args []resp.Value) resp.Value {
	if err := checkArity(name, len(args)); err != nil {
		return resp.MakeError(err.Error())
	}
	c, ok := e.commands[name]
	if !ok {
		// Known to the table but not registered here (the tx commands);
		// they only make sense at the session layer.
		return resp.MakeError("ERR " + strings.ToUpper(name) + " without MULTI context")
	}
	metrics.CommandsProcessed.Inc()
	return c.Execute(&Context{args: args, store: e.store, engine: e})
}

// Watch records the current version of each key in the transaction state.
// Runs under the engine mutex so the versions form a consistent snapshot.
func (e *Engine) Watch(state *tx.State, keys ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return state.Watch(e.store, keys...)
}

// ExecTransaction runs the queued batch of a transaction. The whole batch,
// including the watch check, executes under one hold of the engine mutex.
func (e *Engine) ExecTransaction(state *tx.State) resp.Value {
	e.mu.Lock()
	defer e.mu.Unlock()
	result, err := state.Exec(e.store, e.executeLocked)
	if err != nil {
		switch err {
		case tx.ErrExecWithoutMulti:
			return resp.MakeError("ERR " + err.Error())
		default:
			return resp.MakeError(err.Error())
		}
	}
	return result
}

func (e *Engine) startExpiryLoop() {
	interval := e.cfg.GC.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.mu.Lock()
				removed := e.expiry.SweepDue(e.store.Now())
				e.mu.Unlock()
				if removed > 0 {
					metrics.ExpiredKeys.Add(removed)
					e.logger.Debug("expired keys removed", zap.Int("count", removed))
				}
			case <-e.stopCh:
				return
			}
		}
	}()
}

func (e *Engine) startAutoSave() {
	interval, err := time.ParseDuration(e.cfg.Snapshot.Interval)
	if err != nil || interval <= 0 {
		e.logger.Warn("invalid snapshot interval, autosave disabled",
			zap.String("interval", e.cfg.Snapshot.Interval))
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.saveSnapshot()
			case <-e.stopCh:
				return
			}
		}
	}()
}

func (e *Engine) saveSnapshot() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.snapshot.Save(e.store); err != nil {
		e.logger.Error("snapshot save failed", zap.Error(err))
	}
}

// Shutdown stops the background loops and, when snapshotting is enabled,
// writes a final snapshot.
func (e *Engine) Shutdown() {
	e.stopOnce.Do(func() {
		close(e.stopCh)
		if e.snapshot != nil {
			e.saveSnapshot()
		}
	})
}

func argString(v resp.Value) string {
	return string(v.String)
}
