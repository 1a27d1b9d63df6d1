package model

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect"
	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
)

// Backend is the connection used by a Client.
type Backend interface {
	dialect.Conn
	// Cast returns the conversion of a column type.
	Cast(field.Type) field.Cast
}

// Hooks are called around the life cycle of the entities of one type.
type Hooks struct {
	// Restore runs after an entity is loaded from the database.
	Restore func(*Entity)
	// PreSave runs before create and update, create is true on create.
	PreSave func(ctx context.Context, e *Entity, create bool) error
	// PostSave runs after create and update.
	PostSave func(ctx context.Context, e *Entity, create bool) error
	// PreDelete runs before the delete cascade of the entity.
	PreDelete func(ctx context.Context, e *Entity) error
}

// DeleteFunc runs first in the delete cascade of every entity.
type DeleteFunc func(ctx context.Context, e *Entity) error

// Client gives access to the entities of a registry stored behind one
// connection.
type Client struct {
	reg      *schema.Registry
	conn     Backend
	logger   *slog.Logger
	hooks    map[string]Hooks
	policies map[string]tabula.Policy
	onDelete []DeleteFunc
	cache    tabula.Cache
	cacheTTL time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger of the client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithHooks sets the hooks of an entity type.
func WithHooks(entity string, h Hooks) Option {
	return func(c *Client) { c.hooks[entity] = h }
}

// WithPolicy sets the policy evaluated before queries and mutations of an
// entity type. A nil decision allows the operation, any error denies it.
func WithPolicy(entity string, p tabula.Policy) Option {
	return func(c *Client) { c.policies[entity] = p }
}

// OnDelete adds a step run at the start of every entity delete, inside the
// delete transaction.
func OnDelete(fn DeleteFunc) Option {
	return func(c *Client) { c.onDelete = append(c.onDelete, fn) }
}

// WithCache caches the rows loaded by Client.Get. Updates and deletes made
// through the client invalidate the cached rows.
func WithCache(cache tabula.Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		c.cacheTTL = ttl
	}
}

// NewClient returns a client over the entity types of reg.
func NewClient(reg *schema.Registry, conn Backend, opts ...Option) *Client {
	c := &Client{
		reg:      reg,
		conn:     conn,
		logger:   slog.Default(),
		hooks:    make(map[string]Hooks),
		policies: make(map[string]tabula.Policy),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the entity registry of the client.
func (c *Client) Registry() *schema.Registry { return c.reg }

// Conn returns the connection of the client.
func (c *Client) Conn() Backend { return c.conn }

// Logger returns the logger of the client.
func (c *Client) Logger() *slog.Logger { return c.logger }

// Descriptor returns the metadata of an entity type.
func (c *Client) Descriptor(entity string) (*schema.Descriptor, error) {
	return c.reg.Descriptor(entity)
}

// New returns an unsaved entity with the default value of every column.
func (c *Client) New(entity string) (*Entity, error) {
	d, err := c.reg.Descriptor(entity)
	if err != nil {
		return nil, err
	}
	e := &Entity{client: c, desc: d}
	e.reset()
	return e, nil
}

// MustNew is like New but panics if the entity type is unknown.
func (c *Client) MustNew(entity string) *Entity {
	e, err := c.New(entity)
	if err != nil {
		panic(err)
	}
	return e
}

// Get loads the entity with the given primary key. A missing row is
// reported with a *tabula.NotFoundError.
func (c *Client) Get(ctx context.Context, entity string, id int64) (*Entity, error) {
	e, err := c.New(entity)
	if err != nil {
		return nil, err
	}
	if err := c.evalQuery(ctx, &query{entity: entity, esc: c.conn}); err != nil {
		return nil, err
	}
	found, err := e.loadCached(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, tabula.NewNotFoundErrorWithID(entity, id)
	}
	return e, nil
}

// Tx runs fn in a transaction committed when fn succeeds and rolled back
// otherwise. Inside a running transaction fn joins it.
func (c *Client) Tx(ctx context.Context, fn func(context.Context) error) error {
	if c.conn.InTx() {
		return fn(ctx)
	}
	if err := c.conn.Begin(ctx); err != nil {
		return err
	}
	if err := fn(ctx); err != nil {
		if rerr := c.conn.Rollback(); rerr != nil {
			return &tabula.RollbackError{Err: fmt.Errorf("%w: %v", err, rerr)}
		}
		return err
	}
	return c.conn.Commit()
}

// table returns the quoted prefixed table of d.
func (c *Client) table(d *schema.Descriptor) string {
	return c.conn.Qn(c.conn.Prefix() + d.Table)
}

func (c *Client) literal(col *field.Descriptor, v any) (string, error) {
	s, err := c.conn.Cast(col.Type).ToDB(v, c.conn)
	if err != nil {
		return "", tabula.NewValidationError(col.Name, err)
	}
	return s, nil
}

func (c *Client) idLiteral(id int64) string {
	s, _ := c.conn.Cast(field.TypeSequence).ToDB(id, c.conn)
	return s
}

func (c *Client) evalQuery(ctx context.Context, q *query) error {
	p, ok := c.policies[q.entity]
	if !ok {
		return nil
	}
	if err := p.EvalQuery(ctx, q); err != nil {
		return tabula.NewPrivacyError(q.entity, "query", err)
	}
	return nil
}

func (c *Client) evalMutation(ctx context.Context, e *Entity, op tabula.Op) error {
	p, ok := c.policies[e.desc.Name]
	if !ok {
		return nil
	}
	if err := p.EvalMutation(ctx, mutation{e: e, op: op}); err != nil {
		return tabula.NewPrivacyError(e.desc.Name, op.String(), err)
	}
	return nil
}

// mutation exposes an entity to policies.
type mutation struct {
	e  *Entity
	op tabula.Op
}

func (m mutation) Entity() string                { return m.e.desc.Name }
func (m mutation) Op() tabula.Op                 { return m.op }
func (m mutation) ID() int64                     { return m.e.ID() }
func (m mutation) Field(name string) (any, bool) { return m.e.Lookup(name) }
