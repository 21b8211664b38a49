package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// PoolConfig controls pool sizing and wait behavior.
type PoolConfig struct {
	// MinSize is the number of connections kept warm (0 = none).
	MinSize int
	// MaxSize caps total open connections (0 = unlimited).
	MaxSize int
	// IdleTimeout closes connections idle longer than this (0 = never).
	IdleTimeout time.Duration
	// WaitTimeout bounds the wait for an available connection (0 = no bound).
	WaitTimeout time.Duration
}

// DefaultPoolConfig returns the defaults used by NewDatabaseWithPool.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MinSize:     2,
		MaxSize:     10,
		IdleTimeout: 5 * time.Minute,
		WaitTimeout: 10 * time.Second,
	}
}

var (
	// ErrPoolClosed is returned when acquiring from a closed pool.
	ErrPoolClosed = errors.New("connection pool is closed")
	// ErrPoolTimeout is returned when WaitTimeout elapses before a
	// connection frees up.
	ErrPoolTimeout = errors.New("timeout waiting for available connection")
)

// ConnPool shares a bounded set of connections between goroutines.
type ConnPool struct {
	config  PoolConfig
	factory func() (Conn, error)

	mu        sync.Mutex
	idle      []pooledConn
	numOpen   int
	waitQueue []chan Conn
	closed    bool

	stopCleaner chan struct{}
	cleanerDone chan struct{}
}

type pooledConn struct {
	conn      Conn
	idleSince time.Time
}

// NewConnPool builds a pool around a connection factory, pre-warming
// MinSize connections and starting the idle reaper when IdleTimeout is set.
func NewConnPool(config PoolConfig, factory func() (Conn, error)) (*ConnPool, error) {
	if config.MaxSize > 0 && config.MinSize > config.MaxSize {
		return nil, fmt.Errorf("invalid pool config: MinSize (%d) > MaxSize (%d)", config.MinSize, config.MaxSize)
	}

	pool := &ConnPool{
		config:      config,
		factory:     factory,
		idle:        make([]pooledConn, 0, config.MaxSize),
		stopCleaner: make(chan struct{}),
		cleanerDone: make(chan struct{}),
	}

	if config.IdleTimeout > 0 {
		go pool.reapIdle()
	}

	for i := 0; i < config.MinSize; i++ {
		conn, err := factory()
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("pre-warm connection %d/%d: %w", i+1, config.MinSize, err)
		}
		pool.mu.Lock()
		pool.idle = append(pool.idle, pooledConn{conn: conn, idleSince: time.Now()})
		pool.numOpen++
		pool.mu.Unlock()
	}
	return pool, nil
}

// Get acquires a connection, creating one when the pool is under MaxSize
// and waiting otherwise. Dead idle connections are discarded on the way.
func (p *ConnPool) Get(ctx context.Context) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}

	for len(p.idle) > 0 {
		pc := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if pc.conn.IsOpen() {
			p.mu.Unlock()
			return pc.conn, nil
		}
		pc.conn.Close()
		p.numOpen--
	}

	if p.config.MaxSize == 0 || p.numOpen < p.config.MaxSize {
		p.numOpen++
		p.mu.Unlock()

		conn, err := p.factory()
		if err != nil {
			p.mu.Lock()
			p.numOpen--
			p.mu.Unlock()
			return nil, fmt.Errorf("create connection: %w", err)
		}
		return conn, nil
	}

	waiter := make(chan Conn, 1)
	p.waitQueue = append(p.waitQueue, waiter)
	p.mu.Unlock()

	waitCtx := ctx
	if p.config.WaitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, p.config.WaitTimeout)
		defer cancel()
	}

	select {
	case conn, ok := <-waiter:
		if !ok {
			return nil, ErrPoolClosed
		}
		return conn, nil
	case <-waitCtx.Done():
		p.mu.Lock()
		for i, w := range p.waitQueue {
			if w == waiter {
				p.waitQueue = append(p.waitQueue[:i], p.waitQueue[i+1:]...)
				break
			}
		}
		p.mu.Unlock()

		// Put may have handed a connection to this waiter concurrently
		// with the timeout; drain it so it is not stranded.
		select {
		case conn, ok := <-waiter:
			if ok {
				if ctx.Err() == nil {
					return conn, nil
				}
				p.Put(conn)
			}
		default:
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrPoolTimeout
	}
}

// Put returns a connection. Dead connections are discarded; otherwise a
// waiting goroutine gets it before it goes back on the idle list.
func (p *ConnPool) Put(conn Conn) {
	if conn == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		conn.Close()
		return
	}
	if !conn.IsOpen() {
		conn.Close()
		p.numOpen--
		return
	}

	if len(p.waitQueue) > 0 {
		waiter := p.waitQueue[0]
		p.waitQueue = p.waitQueue[1:]
		select {
		case waiter <- conn:
			return
		default:
			// Waiter gave up; keep the connection.
		}
	}
	p.idle = append(p.idle, pooledConn{conn: conn, idleSince: time.Now()})
}

// Close shuts the pool: idle connections close, waiters wake with
// ErrPoolClosed, and the reaper stops.
func (p *ConnPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true

	if p.config.IdleTimeout > 0 {
		close(p.stopCleaner)
	}
	for _, pc := range p.idle {
		pc.conn.Close()
	}
	p.idle = nil
	for _, waiter := range p.waitQueue {
		close(waiter)
	}
	p.waitQueue = nil
	p.mu.Unlock()

	if p.config.IdleTimeout > 0 {
		<-p.cleanerDone
	}
}

// PoolStats is a point-in-time snapshot of pool occupancy.
type PoolStats struct {
	Available int
	InUse     int
	Total     int
	Waiting   int
}

// Stats reports current pool occupancy.
func (p *ConnPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Available: len(p.idle),
		InUse:     p.numOpen - len(p.idle),
		Total:     p.numOpen,
		Waiting:   len(p.waitQueue),
	}
}

func (p *ConnPool) reapIdle() {
	defer close(p.cleanerDone)

	ticker := time.NewTicker(p.config.IdleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.mu.Lock()
			now := time.Now()
			keep := p.idle[:0]
			for _, pc := range p.idle {
				if now.Sub(pc.idleSince) < p.config.IdleTimeout || len(keep) < p.config.MinSize {
					keep = append(keep, pc)
					continue
				}
				pc.conn.Close()
				p.numOpen--
			}
			p.idle = keep
			p.mu.Unlock()
		case <-p.stopCleaner:
			return
		}
	}
}

// NewDatabaseWithPool binds a database name to a pooled connection. The
// returned Database owns the pool; closing the pool invalidates it.
func NewDatabaseWithPool(config PoolConfig, dbName string, factory func() (Conn, error)) (*Database, error) {
	pool, err := NewConnPool(config, factory)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	return NewDatabase(&poolConn{pool: pool}, dbName), nil
}

// poolConn adapts a ConnPool to the Conn interface. Each operation
// borrows a connection for its duration; transactions hold theirs until
// they finish.
type poolConn struct {
	pool *ConnPool
}

func (pc *poolConn) Transaction(dbName string, txType int) (Tx, error) {
	conn, err := pc.pool.Get(context.Background())
	if err != nil {
		return nil, fmt.Errorf("get connection from pool: %w", err)
	}
	tx, err := conn.Transaction(dbName, txType)
	if err != nil {
		pc.pool.Put(conn)
		return nil, err
	}
	return &pooledTx{tx: tx, conn: conn, pool: pc.pool}, nil
}

func (pc *poolConn) Schema(dbName string) (string, error) {
	conn, err := pc.pool.Get(context.Background())
	if err != nil {
		return "", fmt.Errorf("get connection from pool: %w", err)
	}
	defer pc.pool.Put(conn)
	return conn.Schema(dbName)
}

func (pc *poolConn) DatabaseCreate(name string) error {
	conn, err := pc.pool.Get(context.Background())
	if err != nil {
		return fmt.Errorf("get connection from pool: %w", err)
	}
	defer pc.pool.Put(conn)
	return conn.DatabaseCreate(name)
}

func (pc *poolConn) DatabaseDelete(name string) error {
	conn, err := pc.pool.Get(context.Background())
	if err != nil {
		return fmt.Errorf("get connection from pool: %w", err)
	}
	defer pc.pool.Put(conn)
	return conn.DatabaseDelete(name)
}

func (pc *poolConn) DatabaseContains(name string) (bool, error) {
	conn, err := pc.pool.Get(context.Background())
	if err != nil {
		return false, fmt.Errorf("get connection from pool: %w", err)
	}
	defer pc.pool.Put(conn)
	return conn.DatabaseContains(name)
}

func (pc *poolConn) DatabaseAll() ([]string, error) {
	conn, err := pc.pool.Get(context.Background())
	if err != nil {
		return nil, fmt.Errorf("get connection from pool: %w", err)
	}
	defer pc.pool.Put(conn)
	return conn.DatabaseAll()
}

func (pc *poolConn) Close() { pc.pool.Close() }

func (pc *poolConn) IsOpen() bool {
	pc.pool.mu.Lock()
	defer pc.pool.mu.Unlock()
	return !pc.pool.closed
}

// pooledTx returns its connection to the pool exactly once, when the
// transaction finishes by commit, rollback, or close.
type pooledTx struct {
	tx   Tx
	conn Conn
	pool *ConnPool
	once sync.Once
}

func (pt *pooledTx) release() {
	pt.once.Do(func() { pt.pool.Put(pt.conn) })
}

func (pt *pooledTx) Query(query string) ([]map[string]any, error) {
	return pt.tx.Query(query)
}

func (pt *pooledTx) QueryWithContext(ctx context.Context, query string) ([]map[string]any, error) {
	return pt.tx.QueryWithContext(ctx, query)
}

func (pt *pooledTx) Commit() error {
	err := pt.tx.Commit()
	pt.release()
	return err
}

func (pt *pooledTx) Rollback() error {
	err := pt.tx.Rollback()
	pt.release()
	return err
}

func (pt *pooledTx) Close() {
	pt.tx.Close()
	pt.release()
}

func (pt *pooledTx) IsOpen() bool { return pt.tx.IsOpen() }
