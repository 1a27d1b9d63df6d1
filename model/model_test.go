package model_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/dialect"
	"github.com/syssam/tabula/dialect/sql"
	"github.com/syssam/tabula/internal/testutil"
	"github.com/syssam/tabula/model"
	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
)

func newRegistry() *schema.Registry {
	reg := schema.NewRegistry()
	reg.MustRegister("TodoList", func(d *schema.Def) {
		d.Fields(
			field.Varchar("name").Required(),
			field.Integer("position"),
		)
		d.View("", schema.View{Order: `"todolist"."position"`})
	})
	reg.MustRegister("TodoItem", func(d *schema.Def) {
		d.Fields(
			field.Varchar("item").Size(250).Required(),
			field.Boolean("done"),
			field.Date("due").Nullable(),
			field.ForeignKey("list", "TodoList"),
		)
		d.View("open", schema.View{
			Select: `"todoitem"."id" AS "id", "todoitem"."item" AS "item", UPPER("todoitem"."item") AS "shout"`,
			Where:  `"todoitem"."done" = 0`,
			Props:  []string{"shout"},
		})
	})
	reg.MustRegister("Foo", func(d *schema.Def) {
		d.Fields(
			field.Varchar("name"),
			field.ManyToMany("bars", "Bar"),
		)
	})
	reg.MustRegister("Bar", func(d *schema.Def) {
		d.Fields(field.Varchar("title"))
	})
	reg.MustRegister("Tag", func(d *schema.Def) {
		d.Fields(
			field.Varchar("label"),
			field.ManyToMany("tags", "Tag"),
		)
	})
	return reg
}

func create(t *testing.T, c *model.Client, entity string, values map[string]any) *model.Entity {
	t.Helper()
	e := c.MustNew(entity)
	for k, v := range values {
		require.NoError(t, e.Set(k, v))
	}
	require.NoError(t, e.Create(context.Background()))
	require.NotZero(t, e.ID())
	return e
}

func TestCreateGet(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewClient(t, newRegistry())
	list := create(t, c, "TodoList", map[string]any{"name": "home", "position": 2})
	due := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	item := create(t, c, "TodoItem", map[string]any{"item": "dishes", "done": true, "due": due, "list": list})

	got, err := c.Get(ctx, "TodoItem", item.ID())
	require.NoError(t, err)
	assert.Equal(t, "dishes", got.Str("item"))
	assert.True(t, got.Bool("done"))
	assert.Equal(t, list.ID(), got.Int("list"))
	assert.True(t, due.Equal(got.Value("due").(time.Time)))
	assert.True(t, item.Equal(got))
	assert.Equal(t, "TodoItem(1)", got.String())

	owner, err := got.Related(ctx, "get_list")
	require.NoError(t, err)
	require.NotNil(t, owner)
	assert.Equal(t, "home", owner.Str("name"))

	_, err = c.Get(ctx, "TodoItem", 42)
	assert.True(t, tabula.IsNotFound(err))
	var nf *tabula.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewClient(t, newRegistry())
	a := create(t, c, "TodoList", map[string]any{"name": "a"})
	b := create(t, c, "TodoList", map[string]any{"name": "b"})

	require.NoError(t, a.Set("name", "renamed"))
	require.NoError(t, a.Update(ctx))

	got, err := c.Get(ctx, "TodoList", a.ID())
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Str("name"))
	got, err = c.Get(ctx, "TodoList", b.ID())
	require.NoError(t, err)
	assert.Equal(t, "b", got.Str("name"))

	require.NoError(t, b.Set("position", 9))
	require.NoError(t, b.UpdateWhere(ctx, `"name" = 'b'`))
	assert.Equal(t, int64(9), b.Int("position"))

	gone := c.MustNew("TodoList")
	gone.MustSet("id", 99)
	err = gone.Update(ctx)
	assert.True(t, tabula.IsNotFound(err))
}

func TestSetValidation(t *testing.T) {
	c := testutil.NewClient(t, newRegistry())
	e := c.MustNew("TodoList")

	err := e.Set("position", "twelve")
	var verr *tabula.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "position", verr.Name)

	err = e.Set("missing", 1)
	require.Error(t, err)

	err = e.SetFromInput(map[string]any{"name": "", "position": "x"})
	require.Error(t, err)
	var agg *tabula.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors, 2)
	assert.Equal(t, "", e.Str("name"))

	require.NoError(t, e.SetFromInput(map[string]any{"name": "ok", "position": "3"}))
	assert.Equal(t, "ok", e.Str("name"))
	assert.Equal(t, int64(3), e.Int("position"))
}

func TestSetNilEntity(t *testing.T) {
	c := testutil.NewClient(t, newRegistry())
	list := create(t, c, "TodoList", map[string]any{"name": "home"})
	var none *model.Entity

	item := c.MustNew("TodoItem")
	require.NoError(t, item.Set("list", list))
	require.NoError(t, item.Set("list", none))
	assert.Nil(t, item.Value("list"))

	foo := c.MustNew("Foo")
	require.NoError(t, foo.Set("bars", none))
	assert.Empty(t, foo.Value("bars"))
}

func TestDeleteCascade(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewClient(t, newRegistry())
	list := create(t, c, "TodoList", map[string]any{"name": "home"})
	other := create(t, c, "TodoList", map[string]any{"name": "work"})
	for _, name := range []string{"a", "b", "c"} {
		create(t, c, "TodoItem", map[string]any{"item": name, "list": list})
	}
	create(t, c, "TodoItem", map[string]any{"item": "keep", "list": other})

	effects, err := list.DeleteSideEffects(ctx)
	require.NoError(t, err)
	assert.Len(t, effects, 3)

	id := list.ID()
	deleted, err := list.Delete(ctx)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Zero(t, list.ID())

	n, err := c.GetCount(ctx, "TodoItem", model.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	_, err = c.Get(ctx, "TodoList", id)
	assert.True(t, tabula.IsNotFound(err))

	again := c.MustNew("TodoList")
	again.MustSet("id", id)
	deleted, err = again.Delete(ctx)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func cycleRegistry() *schema.Registry {
	reg := schema.NewRegistry()
	reg.MustRegister("Node", func(d *schema.Def) {
		d.Fields(
			field.Varchar("name"),
			field.ForeignKey("parent", "Node").Nullable(),
		)
	})
	reg.MustRegister("Department", func(d *schema.Def) {
		d.Fields(
			field.Varchar("name"),
			field.ForeignKey("manager", "Employee").Nullable(),
		)
	})
	reg.MustRegister("Employee", func(d *schema.Def) {
		d.Fields(
			field.Varchar("name"),
			field.ForeignKey("department", "Department"),
		)
	})
	return reg
}

func TestDeleteCycles(t *testing.T) {
	ctx := context.Background()
	department := func(t *testing.T, c *model.Client) (dept, boss *model.Entity) {
		dept = create(t, c, "Department", map[string]any{"name": "sales"})
		boss = create(t, c, "Employee", map[string]any{"name": "ann", "department": dept})
		create(t, c, "Employee", map[string]any{"name": "bob", "department": dept})
		require.NoError(t, dept.MustSet("manager", boss).Update(ctx))
		return dept, boss
	}
	tests := []struct {
		name    string
		setup   func(*testing.T, *model.Client) *model.Entity
		effects int
		remain  map[string]int64
	}{
		{
			name: "SelfParent",
			setup: func(t *testing.T, c *model.Client) *model.Entity {
				n := create(t, c, "Node", map[string]any{"name": "loop"})
				require.NoError(t, n.MustSet("parent", n).Update(ctx))
				create(t, c, "Node", map[string]any{"name": "other"})
				return n
			},
			remain: map[string]int64{"Node": 1},
		},
		{
			name: "Chain",
			setup: func(t *testing.T, c *model.Client) *model.Entity {
				root := create(t, c, "Node", map[string]any{"name": "root"})
				child := create(t, c, "Node", map[string]any{"name": "child", "parent": root})
				create(t, c, "Node", map[string]any{"name": "leaf", "parent": child})
				create(t, c, "Node", map[string]any{"name": "other"})
				return root
			},
			effects: 2,
			remain:  map[string]int64{"Node": 1},
		},
		{
			name: "TwoEntities",
			setup: func(t *testing.T, c *model.Client) *model.Entity {
				dept, _ := department(t, c)
				create(t, c, "Department", map[string]any{"name": "support"})
				return dept
			},
			effects: 2,
			remain:  map[string]int64{"Department": 1, "Employee": 0},
		},
		{
			name: "TwoEntitiesFromManager",
			setup: func(t *testing.T, c *model.Client) *model.Entity {
				_, boss := department(t, c)
				return boss
			},
			effects: 2,
			remain:  map[string]int64{"Department": 0, "Employee": 0},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testutil.NewClient(t, cycleRegistry())
			e := tt.setup(t, c)

			effects, err := e.DeleteSideEffects(ctx)
			require.NoError(t, err)
			assert.Len(t, effects, tt.effects)

			deleted, err := e.Delete(ctx)
			require.NoError(t, err)
			assert.True(t, deleted)
			assert.Zero(t, e.ID())
			for entity, want := range tt.remain {
				n, err := c.GetCount(ctx, entity, model.ListOptions{})
				require.NoError(t, err)
				assert.Equal(t, want, n, entity)
			}
		})
	}
}

func TestDeleteClearsAssociations(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewClient(t, newRegistry())
	bar := create(t, c, "Bar", map[string]any{"title": "x"})
	foo := create(t, c, "Foo", map[string]any{"name": "f", "bars": []int64{bar.ID()}})

	deleted, err := bar.Delete(ctx)
	require.NoError(t, err)
	require.True(t, deleted)

	bars, err := foo.RelatedList(ctx, "get_bars_list", model.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, bars)
}

func TestBatchAssociation(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewClient(t, newRegistry())
	var ids []int64
	for _, title := range []string{"one", "two", "three"} {
		ids = append(ids, create(t, c, "Bar", map[string]any{"title": title}).ID())
	}
	foo := create(t, c, "Foo", map[string]any{"name": "f"})

	count := func() int64 {
		n, err := foo.CountRelated(ctx, "get_bars_list", model.ListOptions{})
		require.NoError(t, err)
		return n
	}
	require.NoError(t, foo.BatchAssociation(ctx, "Bar", ids))
	assert.Equal(t, int64(3), count())
	require.NoError(t, foo.BatchAssociation(ctx, "Bar", ids))
	assert.Equal(t, int64(3), count())
	require.NoError(t, foo.BatchAssociation(ctx, "Bar", append(ids[:1:1], 404, ids[0])))
	assert.Equal(t, int64(1), count())
	require.NoError(t, foo.BatchAssociation(ctx, "Bar", nil))
	assert.Equal(t, int64(0), count())

	err := foo.BatchAssociation(ctx, "TodoList", ids)
	assert.True(t, tabula.IsAssociationError(err))

	bar, err := c.Get(ctx, "Bar", ids[1])
	require.NoError(t, err)
	require.NoError(t, foo.Associate(ctx, bar))
	require.NoError(t, foo.Associate(ctx, bar))
	foos, err := bar.RelatedList(ctx, "get_foo_list", model.ListOptions{})
	require.NoError(t, err)
	require.Len(t, foos, 1)
	assert.True(t, foo.Equal(foos[0]))

	data, err := foo.Data(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[1]}, data["bars"])

	require.NoError(t, foo.Dissociate(ctx, bar))
	assert.Equal(t, int64(0), count())
}

func TestAssociationIDDeclaredLast(t *testing.T) {
	ctx := context.Background()
	reg := schema.NewRegistry()
	reg.MustRegister("Team", func(d *schema.Def) {
		d.Fields(field.Varchar("name"), field.Sequence("id"))
	})
	reg.MustRegister("Member", func(d *schema.Def) {
		d.Fields(field.Varchar("login"), field.ManyToMany("teams", "Team"))
	})
	c := testutil.NewClient(t, reg)
	red := create(t, c, "Team", map[string]any{"name": "red"})
	blue := create(t, c, "Team", map[string]any{"name": "blue"})

	ann := create(t, c, "Member", map[string]any{"login": "ann"})
	require.NoError(t, ann.BatchAssociation(ctx, "Team", []int64{red.ID(), blue.ID(), 999}))
	teams, err := ann.RelatedList(ctx, "get_teams_list", model.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, teams, 2)

	bob := create(t, c, "Member", map[string]any{"login": "bob", "teams": []int64{blue.ID()}})
	teams, err = bob.RelatedList(ctx, "get_teams_list", model.ListOptions{})
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, "blue", teams[0].Str("name"))
}

func TestManyToManyOnSave(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewClient(t, newRegistry())
	b1 := create(t, c, "Bar", map[string]any{"title": "1"})
	b2 := create(t, c, "Bar", map[string]any{"title": "2"})
	foo := create(t, c, "Foo", map[string]any{"name": "f", "bars": []*model.Entity{b1, b2}})

	got, err := foo.Call(ctx, "get_bars_list", model.ListOptions{Order: []string{`"bar"."title" DESC`}})
	require.NoError(t, err)
	bars := got.([]*model.Entity)
	require.Len(t, bars, 2)
	assert.Equal(t, "2", bars[0].Str("title"))

	require.NoError(t, foo.Set("bars", []int64{b1.ID()}))
	require.NoError(t, foo.Update(ctx))
	n, err := foo.CountRelated(ctx, "get_bars_list", model.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSelfReferentialManyToMany(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewClient(t, newRegistry())
	t1 := create(t, c, "Tag", map[string]any{"label": "go"})
	t2 := create(t, c, "Tag", map[string]any{"label": "sql"})
	require.NoError(t, t1.BatchAssociation(ctx, "Tag", []int64{t2.ID()}))

	for _, tc := range []struct{ from, to *model.Entity }{{t1, t2}, {t2, t1}} {
		for _, method := range []string{"get_tag_list", "get_tags_list"} {
			related, err := tc.from.RelatedList(ctx, method, model.ListOptions{})
			require.NoError(t, err)
			require.Len(t, related, 1, method)
			assert.True(t, tc.to.Equal(related[0]))
		}
	}

	deleted, err := t2.Delete(ctx)
	require.NoError(t, err)
	require.True(t, deleted)
	related, err := t1.RelatedList(ctx, "get_tag_list", model.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, related)
}

func TestGetOne(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewClient(t, newRegistry())
	create(t, c, "TodoList", map[string]any{"name": "a"})
	create(t, c, "TodoList", map[string]any{"name": "b"})

	e, err := c.GetOne(ctx, "TodoList", model.Where(`"name" = %s`, "'a'"))
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "a", e.Str("name"))

	e, err = c.GetOne(ctx, "TodoList", model.Where(`"name" = 'z'`))
	require.NoError(t, err)
	assert.Nil(t, e)

	_, err = c.GetOne(ctx, "TodoList", model.ListOptions{})
	var merr *tabula.MultipleMatchError
	require.ErrorAs(t, err, &merr)
	assert.True(t, errors.Is(err, tabula.ErrMultipleMatch))
}

func TestGetListOptions(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewClient(t, newRegistry())
	for i, name := range []string{"c", "a", "d", "b"} {
		create(t, c, "TodoList", map[string]any{"name": name, "position": i})
	}
	names := func(items []*model.Entity) string {
		var out []string
		for _, e := range items {
			out = append(out, e.Str("name"))
		}
		return strings.Join(out, "")
	}

	items, err := c.GetList(ctx, "TodoList", model.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, "cadb", names(items))

	items, err = c.GetList(ctx, "TodoList", model.ListOptions{Start: model.Int(1)})
	require.NoError(t, err)
	assert.Equal(t, "adb", names(items))

	items, err = c.GetList(ctx, "TodoList", model.ListOptions{Count: model.Int(2)})
	require.NoError(t, err)
	assert.Equal(t, "ca", names(items))

	items, err = c.GetList(ctx, "TodoList", model.ListOptions{
		Filter: []string{`"position" > 0`, `"name" <> 'd'`},
		Start:  model.Int(1),
		Count:  model.Int(5),
	})
	require.NoError(t, err)
	assert.Equal(t, "b", names(items))

	n, err := c.GetCount(ctx, "TodoList", model.ListOptions{Filter: []string{`"position" >= 2`}, Count: model.Int(1)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, err = c.GetList(ctx, "TodoList", model.ListOptions{View: "missing"})
	require.Error(t, err)
}

func TestViewProps(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewClient(t, newRegistry())
	create(t, c, "TodoItem", map[string]any{"item": "open"})
	create(t, c, "TodoItem", map[string]any{"item": "closed", "done": true})

	items, err := c.GetList(ctx, "TodoItem", model.ListOptions{View: "open"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "OPEN", items[0].Str("shout"))
	assert.Equal(t, "open", items[0].Value("item"))

	n, err := c.GetCount(ctx, "TodoItem", model.ListOptions{View: "open"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAccessors(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewClient(t, newRegistry())
	list := create(t, c, "TodoList", map[string]any{"name": "l"})
	item := create(t, c, "TodoItem", map[string]any{"item": "i", "list": list})
	loose := create(t, c, "TodoItem", map[string]any{"item": "loose"})

	assert.ElementsMatch(t, []string{"get_todoitem_list"}, list.Methods())

	got, err := list.Call(ctx, "get_todoitem_list")
	require.NoError(t, err)
	require.Len(t, got.([]*model.Entity), 1)

	items, err := list.GetRelated(ctx, "TodoItem", "", model.ListOptions{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, item.Equal(items[0]))

	owner, err := loose.Call(ctx, "get_list")
	require.NoError(t, err)
	assert.Nil(t, owner)

	_, err = list.Call(ctx, "get_nothing")
	assert.True(t, tabula.IsMethodNotAvailable(err))
	_, err = list.GetRelated(ctx, "Bar", "", model.ListOptions{})
	assert.True(t, tabula.IsAssociationError(err))

	require.NoError(t, loose.Set("list", list))
	resolved, err := loose.Related(ctx, "get_list")
	require.NoError(t, err)
	require.NotNil(t, resolved)
	assert.True(t, list.Equal(resolved))
	require.NoError(t, loose.Set("list", nil))
	resolved, err = loose.Related(ctx, "get_list")
	require.NoError(t, err)
	assert.Nil(t, resolved)
}

func TestTx(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewClient(t, newRegistry())

	boom := errors.New("boom")
	err := c.Tx(ctx, func(ctx context.Context) error {
		create(t, c, "Bar", map[string]any{"title": "rolled back"})
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, c.Tx(ctx, func(ctx context.Context) error {
		create(t, c, "Bar", map[string]any{"title": "kept"})
		return nil
	}))
	n, err := c.GetCount(ctx, "Bar", model.ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestTxRollbackFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	c := model.NewClient(newRegistry(), sql.OpenDB(dialect.SQLite, db))
	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(errors.New("connection lost"))

	boom := errors.New("boom")
	err = c.Tx(context.Background(), func(context.Context) error { return boom })
	var rerr *tabula.RollbackError
	require.ErrorAs(t, err, &rerr)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "connection lost")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHooks(t *testing.T) {
	ctx := context.Background()
	var calls []string
	c := testutil.NewClient(t, newRegistry(),
		model.WithHooks("Bar", model.Hooks{
			Restore: func(e *model.Entity) { calls = append(calls, "restore") },
			PreSave: func(_ context.Context, e *model.Entity, create bool) error {
				if create {
					return e.Set("title", strings.ToUpper(e.Str("title")))
				}
				calls = append(calls, "presave")
				return nil
			},
			PostSave: func(_ context.Context, _ *model.Entity, create bool) error {
				calls = append(calls, "postsave")
				return nil
			},
			PreDelete: func(_ context.Context, e *model.Entity) error {
				if e.Str("title") == "KEEP" {
					return errors.New("protected")
				}
				return nil
			},
		}),
		model.OnDelete(func(_ context.Context, e *model.Entity) error {
			calls = append(calls, "ondelete:"+e.Name())
			return nil
		}),
	)
	keep := create(t, c, "Bar", map[string]any{"title": "keep"})
	assert.Equal(t, "KEEP", keep.Str("title"))

	_, err := keep.Delete(ctx)
	require.EqualError(t, err, "protected")

	drop := create(t, c, "Bar", map[string]any{"title": "drop"})
	require.NoError(t, drop.Update(ctx))
	deleted, err := drop.Delete(ctx)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Contains(t, calls, "presave")
	assert.Contains(t, calls, "restore")
	assert.Contains(t, calls, "ondelete:Bar")
}

type denyWrites struct{}

func (denyWrites) EvalQuery(_ context.Context, q tabula.Query) error {
	q.Filter().Where(`"title" <> 'secret'`)
	return nil
}

func (denyWrites) EvalMutation(_ context.Context, m tabula.Mutation) error {
	if m.Op().Is(tabula.OpDelete) {
		return errors.New("read only")
	}
	return nil
}

func TestPolicy(t *testing.T) {
	ctx := context.Background()
	c := testutil.NewClient(t, newRegistry(), model.WithPolicy("Bar", denyWrites{}))
	create(t, c, "Bar", map[string]any{"title": "secret"})
	b := create(t, c, "Bar", map[string]any{"title": "public"})

	items, err := c.GetList(ctx, "Bar", model.ListOptions{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "public", items[0].Str("title"))

	_, err = b.Delete(ctx)
	assert.True(t, tabula.IsPrivacyError(err))
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	hits int
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if ok {
		m.hits++
	}
	return b, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memCache) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
		}
	}
	return nil
}

func TestCache(t *testing.T) {
	ctx := context.Background()
	cache := &memCache{data: make(map[string][]byte)}
	c := testutil.NewClient(t, newRegistry(), model.WithCache(cache, time.Minute))
	list := create(t, c, "TodoList", map[string]any{"name": "cached", "position": 4})

	for range 2 {
		got, err := c.Get(ctx, "TodoList", list.ID())
		require.NoError(t, err)
		assert.Equal(t, "cached", got.Str("name"))
		assert.Equal(t, int64(4), got.Int("position"))
	}
	assert.Equal(t, 1, cache.hits)
	assert.Contains(t, cache.data, "todolist:get:1")

	require.NoError(t, list.Set("name", "fresh"))
	require.NoError(t, list.Update(ctx))
	assert.NotContains(t, cache.data, "todolist:get:1")
	got, err := c.Get(ctx, "TodoList", list.ID())
	require.NoError(t, err)
	assert.Equal(t, "fresh", got.Str("name"))
}

func TestMetadataIdempotent(t *testing.T) {
	reg := newRegistry()
	first, err := reg.Descriptor("Tag")
	require.NoError(t, err)
	reg.Reset()
	second, err := reg.Descriptor("Tag")
	require.NoError(t, err)
	assert.Equal(t, first.ColumnNames(), second.ColumnNames())
	assert.Equal(t, first.Relations.Methods(), second.Relations.Methods())
}
