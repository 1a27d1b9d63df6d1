package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/tabula/internal/testutil"
	"github.com/syssam/tabula/model"
	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
)

func newQueue(t *testing.T) (*Queue, *model.Client) {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, Register(reg))
	reg.MustRegister("Page", func(d *schema.Def) {
		d.Fields(field.Varchar("path"))
	})
	c := testutil.NewClient(t, reg)
	q := New(c)
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return q, c
}

func page(t *testing.T, c *model.Client, path string) *model.Entity {
	t.Helper()
	e := c.MustNew("Page").MustSet("path", path)
	require.NoError(t, e.Create(context.Background()))
	return e
}

func TestClaimOrder(t *testing.T) {
	ctx := context.Background()
	q, c := newQueue(t)
	a, b := page(t, c, "/a"), page(t, c, "/b")
	_, err := q.Push(ctx, a, "index")
	require.NoError(t, err)
	_, err = q.Push(ctx, b, "purge")
	require.NoError(t, err)

	first, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "index", first.Action())
	assert.Equal(t, "Page", first.ModelClass())
	assert.Equal(t, a.ID(), first.ModelID())
	assert.Equal(t, time.Date(2024, 1, 1, 12, 1, 0, 0, time.UTC), first.Created())

	target, err := first.Target(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/a", target.Str("path"))

	second, err := q.Claim(ctx)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "purge", second.Action())

	none, err := q.Claim(ctx)
	require.NoError(t, err)
	assert.Nil(t, none)

	require.NoError(t, q.Release(ctx, first))
	n, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestProcess(t *testing.T) {
	ctx := context.Background()
	q, c := newQueue(t)
	for _, p := range []string{"/1", "/2", "/3"} {
		_, err := q.Push(ctx, page(t, c, p), "render")
		require.NoError(t, err)
	}

	var seen []int64
	n, err := q.Process(ctx, func(_ context.Context, job *Job) error {
		seen = append(seen, job.ModelID())
		if len(seen) == 2 {
			return errors.New("render failed")
		}
		return nil
	})
	require.ErrorContains(t, err, "render failed")
	assert.Equal(t, 1, n)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)

	n, err = q.Process(ctx, func(context.Context, *Job) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	total, err := c.GetCount(ctx, Entity, model.ListOptions{})
	require.NoError(t, err)
	assert.Zero(t, total)
}
