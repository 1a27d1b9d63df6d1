package model

import (
	"bytes"
	"context"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect"
	"github.com/syssam/tabula/schema"
)

// cacheOp is the operation part of the cache keys of rows loaded by id.
const cacheOp = "get"

func (c *Client) cacheKey(d *schema.Descriptor, id int64) tabula.CacheKey {
	return tabula.CacheKey{Table: c.conn.Prefix() + d.Table, Operation: cacheOp, ID: id}
}

// loadCached is like load but serves the row from the client cache when
// one is configured. Cache failures are logged and fall back to the
// database.
func (e *Entity) loadCached(ctx context.Context, id int64) (bool, error) {
	c := e.client
	if c.cache == nil {
		return e.load(ctx, id)
	}
	key := c.cacheKey(e.desc, id).String()
	b, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "cache get failed", "key", key, "error", err)
	}
	if len(b) > 0 {
		row, err := decodeRow(b)
		if err == nil {
			return true, e.decode(row, nil)
		}
		c.logger.WarnContext(ctx, "cache entry dropped", "key", key, "error", err)
	}
	rows, err := c.conn.Select(ctx, e.selectByID(id))
	if err != nil {
		return false, err
	}
	if len(rows) == 0 {
		return false, nil
	}
	if b, err := msgpack.Marshal(rows[0]); err != nil {
		c.logger.WarnContext(ctx, "cache encode failed", "key", key, "error", err)
	} else if err := c.cache.Set(ctx, key, b, c.cacheTTL); err != nil {
		c.logger.WarnContext(ctx, "cache set failed", "key", key, "error", err)
	}
	return true, e.decode(rows[0], nil)
}

func decodeRow(b []byte) (dialect.Row, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(b))
	dec.UseLooseInterfaceDecoding(true)
	var row map[string]any
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	return row, nil
}

// invalidate drops the cached row of one entity.
func (c *Client) invalidate(ctx context.Context, d *schema.Descriptor, id int64) {
	if c.cache == nil {
		return
	}
	key := c.cacheKey(d, id).String()
	if err := c.cache.Delete(ctx, key); err != nil {
		c.logger.WarnContext(ctx, "cache delete failed", "key", key, "error", err)
	}
}

// invalidateTable drops the cached rows of every entity of d.
func (c *Client) invalidateTable(ctx context.Context, d *schema.Descriptor) {
	if c.cache == nil {
		return
	}
	prefix := c.cacheKey(d, 0).Prefix()
	if err := c.cache.DeletePrefix(ctx, prefix); err != nil {
		c.logger.WarnContext(ctx, "cache delete failed", "prefix", prefix, "error", err)
	}
}
