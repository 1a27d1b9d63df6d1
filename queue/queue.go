// Package queue is a work queue stored in a table. Workers claim the oldest
// unlocked job in a transaction, which locks the row on databases that
// support FOR UPDATE.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/syssam/tabula/dialect/sql"
	"github.com/syssam/tabula/model"
	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
	"github.com/syssam/tabula/schema/index"
)

// Entity is the entity name of queued jobs.
const Entity = "Queue"

// Register adds the Queue entity type to reg.
func Register(reg *schema.Registry) error {
	return reg.Register(Entity, func(d *schema.Def) {
		d.Fields(
			field.Varchar("model_class").Size(100),
			field.Integer("model_id"),
			field.Varchar("action").Size(100).Required(),
			field.Boolean("lock"),
			field.Datetime("creation_dtime"),
		)
		d.Indexes(index.Fields("lock", "creation_dtime").Name("pending"))
	})
}

// Job is a queued job.
type Job struct {
	e *model.Entity
}

// ID returns the id of the job.
func (j *Job) ID() int64 { return j.e.ID() }

// Action returns the action of the job.
func (j *Job) Action() string { return j.e.Str("action") }

// ModelClass returns the entity type the job applies to.
func (j *Job) ModelClass() string { return j.e.Str("model_class") }

// ModelID returns the id of the entity the job applies to.
func (j *Job) ModelID() int64 { return j.e.Int("model_id") }

// Created returns the time the job was pushed.
func (j *Job) Created() time.Time {
	t, _ := j.e.Value("creation_dtime").(time.Time)
	return t
}

// Target loads the entity the job applies to.
func (j *Job) Target(ctx context.Context) (*model.Entity, error) {
	return j.e.Client().Get(ctx, j.ModelClass(), j.ModelID())
}

// Handler runs a claimed job.
type Handler func(ctx context.Context, job *Job) error

// Queue pushes and claims jobs.
type Queue struct {
	client *model.Client
	now    func() time.Time
}

// New returns the queue stored through c. The registry of c must contain
// the Queue entity added by Register.
func New(c *model.Client) *Queue {
	return &Queue{client: c, now: time.Now}
}

// Push queues action on target.
func (q *Queue) Push(ctx context.Context, target *model.Entity, action string) (*Job, error) {
	e, err := q.client.New(Entity)
	if err != nil {
		return nil, err
	}
	for name, v := range map[string]any{
		"model_class":    target.Name(),
		"model_id":       target.ID(),
		"action":         action,
		"creation_dtime": q.now().UTC().Truncate(time.Second),
	} {
		if err := e.Set(name, v); err != nil {
			return nil, err
		}
	}
	if err := e.Create(ctx); err != nil {
		return nil, err
	}
	return &Job{e: e}, nil
}

// Claim locks and returns the oldest unlocked job, or nil when there is
// none.
func (q *Queue) Claim(ctx context.Context) (*Job, error) {
	var job *Job
	conn := q.client.Conn()
	err := q.client.Tx(ctx, func(ctx context.Context) error {
		e, err := q.client.GetOne(ctx, Entity, model.ListOptions{
			Filter:    []string{sql.EQ(conn, "lock", false)},
			Order:     []string{conn.Qn("creation_dtime"), conn.Qn("id")},
			Count:     model.Int(1),
			ForUpdate: true,
		})
		if err != nil || e == nil {
			return err
		}
		if err := e.Set("lock", true); err != nil {
			return err
		}
		if err := e.Update(ctx); err != nil {
			return err
		}
		job = &Job{e: e}
		return nil
	})
	return job, err
}

// Done removes a finished job.
func (q *Queue) Done(ctx context.Context, job *Job) error {
	_, err := job.e.Delete(ctx)
	return err
}

// Release unlocks a claimed job so it can be claimed again.
func (q *Queue) Release(ctx context.Context, job *Job) error {
	if err := job.e.Set("lock", false); err != nil {
		return err
	}
	return job.e.Update(ctx)
}

// Pending returns the number of unlocked jobs.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	return q.client.GetCount(ctx, Entity, model.ListOptions{
		Filter: []string{sql.EQ(q.client.Conn(), "lock", false)},
	})
}

// Process claims and runs jobs until the queue is empty or the context is
// done. A failed job is released and its error returned.
func (q *Queue) Process(ctx context.Context, h Handler) (int, error) {
	var n int
	for ctx.Err() == nil {
		job, err := q.Claim(ctx)
		if err != nil || job == nil {
			return n, err
		}
		if err := h(ctx, job); err != nil {
			if rerr := q.Release(ctx, job); rerr != nil {
				q.client.Logger().ErrorContext(ctx, "releasing job", "job", job.ID(), "error", rerr)
			}
			return n, fmt.Errorf("queue: job %d (%s): %w", job.ID(), job.Action(), err)
		}
		if err := q.Done(ctx, job); err != nil {
			return n, err
		}
		n++
	}
	return n, ctx.Err()
}
