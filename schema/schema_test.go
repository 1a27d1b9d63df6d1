package schema_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/tabula"
	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
	"github.com/syssam/tabula/schema/index"
)

func todoRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register("Todo_List", func(d *schema.Def) {
		d.Fields(field.Varchar("name").Size(100).Required())
	}))
	require.NoError(t, reg.Register("Todo_Item", func(d *schema.Def) {
		d.Table("todo_items")
		d.Fields(
			field.Varchar("item").Size(250).Required(),
			field.Boolean("completed"),
			field.ForeignKey("list", "Todo_List"),
			field.ManyToMany("tags", "Tag").Blank(),
		)
		d.Indexes(index.Fields("completed"))
		d.View("open", schema.View{Where: "completed = 0", Order: "item ASC"})
	}))
	require.NoError(t, reg.Register("Tag", func(d *schema.Def) {
		d.Fields(
			field.Varchar("name").Unique(),
			field.ManyToMany("related", "Tag").RelateName("tag"),
		)
	}))
	return reg
}

func TestDescriptor(t *testing.T) {
	reg := todoRegistry(t)
	d, err := reg.Descriptor("Todo_Item")
	require.NoError(t, err)
	assert.Equal(t, "todo_items", d.Table)
	assert.Equal(t, "Todo Item", d.Verbose)
	assert.Equal(t, []string{"id", "item", "completed", "list", "tags"}, d.ColumnNames())

	id, ok := d.Column("id")
	require.True(t, ok)
	assert.Equal(t, field.TypeSequence, id.Type)
	item, _ := d.Column("item")
	assert.Equal(t, "Item", item.Verbose)

	v, err := d.View("open")
	require.NoError(t, err)
	assert.Equal(t, "completed = 0", v.Where)
	_, err = d.View("closed")
	assert.Error(t, err)
	v, err = d.View("")
	require.NoError(t, err)
	assert.Equal(t, schema.View{}, v)

	assert.Contains(t, d.Indexes, "completed")

	list, err := reg.Descriptor("Todo_List")
	require.NoError(t, err)
	assert.Equal(t, "todo_list", list.Table)
}

func TestAccessors(t *testing.T) {
	reg := todoRegistry(t)
	item, err := reg.Descriptor("Todo_Item")
	require.NoError(t, err)

	a, ok := item.Accessor("get_list")
	require.True(t, ok)
	assert.Equal(t, schema.ForeignKey, a.Kind)
	assert.Equal(t, "Todo_List", a.Target)
	assert.Equal(t, "list", a.Column)

	a, ok = item.Accessor("get_tags_list")
	require.True(t, ok)
	assert.Equal(t, schema.ManyToMany, a.Kind)
	assert.Equal(t, schema.Junction{Table: "tag_todo_item_assoc", SelfColumn: "todo_item_id", TargetColumn: "tag_id"}, *a.Junction)

	list, err := reg.Descriptor("Todo_List")
	require.NoError(t, err)
	a, ok = list.Accessor("get_todo_item_list")
	require.True(t, ok)
	assert.Equal(t, schema.ReverseForeignKey, a.Kind)
	assert.Equal(t, "Todo_Item", a.Target)
	assert.Equal(t, "list", a.Column)
	assert.Equal(t, []string{"get_todo_item_list"}, list.Relations.Methods())

	tag, err := reg.Descriptor("Tag")
	require.NoError(t, err)
	a, ok = tag.Accessor("get_todo_item_list")
	require.True(t, ok)
	assert.Equal(t, schema.ReverseManyToMany, a.Kind)
	assert.Equal(t, "tag_id", a.Junction.SelfColumn)
	assert.Equal(t, "todo_item_id", a.Junction.TargetColumn)

	_, ok = item.Accessor("get_foo")
	assert.False(t, ok)
}

func TestSelfReferentialManyToMany(t *testing.T) {
	reg := todoRegistry(t)
	tag, err := reg.Descriptor("Tag")
	require.NoError(t, err)

	own, ok := tag.Accessor("get_related_list")
	require.True(t, ok)
	rev, ok := tag.Accessor("get_tag_list")
	require.True(t, ok)
	want := schema.Junction{Table: "tag_tag_assoc", SelfColumn: "tag_id", TargetColumn: "related_tag_id", Symmetric: true}
	assert.Equal(t, want, *own.Junction)
	assert.Equal(t, want, *rev.Junction)

	m2m, ok := tag.Relations.ManyToManyWith("Tag")
	require.True(t, ok)
	assert.Equal(t, "tag_tag_assoc", m2m.Junction.Table)
}

func TestSelfReferentialForeignKey(t *testing.T) {
	reg := schema.NewRegistry()
	reg.MustRegister("Category", func(d *schema.Def) {
		d.Fields(field.Varchar("name"), field.ForeignKey("parent", "Category").Nullable().RelateName("children"))
	})
	d, err := reg.Descriptor("Category")
	require.NoError(t, err)
	_, ok := d.Accessor("get_parent")
	assert.True(t, ok)
	a, ok := d.Accessor("get_children_list")
	require.True(t, ok)
	assert.Equal(t, "Category", a.Target)
}

func TestJunctionSymmetry(t *testing.T) {
	assert.Equal(t, "bar_foo_assoc", schema.JunctionTable("Foo", "Bar"))
	assert.Equal(t, "bar_foo_assoc", schema.JunctionTable("Bar", "Foo"))
	assert.Equal(t, schema.NewJunction("Foo", "Bar").Table, schema.NewJunction("Bar", "Foo").Table)
	j := schema.NewJunction("Foo", "Bar")
	assert.Equal(t, schema.NewJunction("Bar", "Foo"), j.Flip())

	for _, declarer := range []string{"Foo", "Bar"} {
		t.Run(declarer, func(t *testing.T) {
			reg := schema.NewRegistry()
			other := "Bar"
			if declarer == "Bar" {
				other = "Foo"
			}
			reg.MustRegister(declarer, func(d *schema.Def) {
				d.Fields(field.ManyToMany("others", other))
			})
			reg.MustRegister(other, func(d *schema.Def) {})
			d, err := reg.Descriptor(other)
			require.NoError(t, err)
			a, ok := d.Relations.ManyToManyWith(declarer)
			require.True(t, ok)
			assert.Equal(t, "bar_foo_assoc", a.Junction.Table)
		})
	}
}

func TestBuildIsIdempotent(t *testing.T) {
	reg := todoRegistry(t)
	first, err := reg.Descriptors()
	require.NoError(t, err)
	again, err := reg.Descriptors()
	require.NoError(t, err)
	for i := range first {
		assert.Same(t, first[i], again[i])
	}

	reg.Reset()
	rebuilt, err := reg.Descriptors()
	require.NoError(t, err)
	require.Len(t, rebuilt, len(first))
	for i := range first {
		assert.NotSame(t, first[i], rebuilt[i])
		assert.Equal(t, first[i], rebuilt[i])
	}
}

func TestConcurrentFirstBuild(t *testing.T) {
	reg := schema.NewRegistry()
	var mu sync.Mutex
	calls := 0
	reg.MustRegister("Counter", func(d *schema.Def) {
		mu.Lock()
		calls++
		mu.Unlock()
		d.Fields(field.Integer("n"))
	})
	var wg sync.WaitGroup
	descs := make([]*schema.Descriptor, 16)
	for i := range descs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			descs[i], _ = reg.Descriptor("Counter")
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, calls)
	for _, d := range descs {
		assert.Same(t, descs[0], d)
	}
}

func TestSealed(t *testing.T) {
	reg := todoRegistry(t)
	_, err := reg.Descriptor("Tag")
	require.NoError(t, err)
	assert.ErrorIs(t, reg.Register("Late", func(*schema.Def) {}), schema.ErrSealed)
	reg.Reset()
	assert.NoError(t, reg.Register("Late", func(*schema.Def) {}))
	assert.Error(t, reg.Register("Late", func(*schema.Def) {}))
}

func TestMetadataErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(reg *schema.Registry)
		wantMsg string
	}{
		{
			name: "ambiguous reverse relation",
			setup: func(reg *schema.Registry) {
				reg.MustRegister("User", func(*schema.Def) {})
				reg.MustRegister("Message", func(d *schema.Def) {
					d.Fields(field.ForeignKey("sender", "User"), field.ForeignKey("recipient", "User"))
				})
			},
			wantMsg: `accessor "get_message_list"`,
		},
		{
			name: "unknown target",
			setup: func(reg *schema.Registry) {
				reg.MustRegister("Message", func(d *schema.Def) {
					d.Fields(field.ForeignKey("sender", "User"))
				})
			},
			wantMsg: `targets unregistered entity "User"`,
		},
		{
			name: "id not a sequence",
			setup: func(reg *schema.Registry) {
				reg.MustRegister("Bad", func(d *schema.Def) {
					d.Fields(field.Integer("id"))
				})
			},
			wantMsg: "must be a sequence",
		},
		{
			name: "duplicate column",
			setup: func(reg *schema.Registry) {
				reg.MustRegister("Bad", func(d *schema.Def) {
					d.Fields(field.Integer("n"), field.Varchar("n"))
				})
			},
			wantMsg: `column "n" declared twice`,
		},
		{
			name: "index on unknown column",
			setup: func(reg *schema.Registry) {
				reg.MustRegister("Bad", func(d *schema.Def) {
					d.Indexes(index.Fields("missing"))
				})
			},
			wantMsg: `unknown column "missing"`,
		},
		{
			name: "two junctions for one pair",
			setup: func(reg *schema.Registry) {
				reg.MustRegister("Tag", func(*schema.Def) {})
				reg.MustRegister("Post", func(d *schema.Def) {
					d.Fields(field.ManyToMany("tags", "Tag"), field.ManyToMany("labels", "Tag").RelateName("labelled"))
				})
			},
			wantMsg: `share junction table "post_tag_assoc"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := schema.NewRegistry()
			tt.setup(reg)
			_, err := reg.Descriptors()
			require.Error(t, err)
			assert.True(t, tabula.IsMetadataError(err), err)
			assert.Contains(t, err.Error(), tt.wantMsg)
			_, again := reg.Descriptors()
			assert.Equal(t, err, again)
		})
	}
}

func TestDistinctRelateNames(t *testing.T) {
	reg := schema.NewRegistry()
	reg.MustRegister("User", func(*schema.Def) {})
	reg.MustRegister("Message", func(d *schema.Def) {
		d.Fields(
			field.ForeignKey("sender", "User").RelateName("sent"),
			field.ForeignKey("recipient", "User").RelateName("received"),
		)
	})
	user, err := reg.Descriptor("User")
	require.NoError(t, err)
	assert.Equal(t, []string{"get_sent_list", "get_received_list"}, user.Relations.Methods())
	assert.Len(t, user.Relations.To("Message"), 2)
}

func TestLoadYAML(t *testing.T) {
	const doc = `
entities:
  - name: Todo_List
    columns:
      - {name: name, type: varchar, size: 100, required: true}
  - name: Todo_Item
    verbose: task
    columns:
      - {name: item, type: varchar, size: 250, required: true}
      - {name: completed, type: boolean, default: false}
      - {name: list, type: foreignkey, target: Todo_List, relate_name: items}
      - {name: home, type: varchar, validate: url}
    indexes:
      - {name: done, fields: [completed]}
    views:
      open: {where: "completed = 0"}
`
	reg := schema.NewRegistry()
	require.NoError(t, reg.LoadYAML(strings.NewReader(doc)))
	assert.Equal(t, []string{"Todo_List", "Todo_Item"}, reg.Names())

	item, err := reg.Descriptor("Todo_Item")
	require.NoError(t, err)
	assert.Equal(t, "task", item.Verbose)
	c, ok := item.Column("item")
	require.True(t, ok)
	assert.Equal(t, 250, c.Size)
	assert.True(t, c.Required)
	home, _ := item.Column("home")
	assert.Len(t, home.Validators, 1)
	assert.Equal(t, []string{"completed"}, item.Indexes["done"].Fields)
	assert.Equal(t, "completed = 0", item.Views["open"].Where)

	list, err := reg.Descriptor("Todo_List")
	require.NoError(t, err)
	_, ok = list.Accessor("get_items_list")
	assert.True(t, ok)
}

func TestLoadYAMLErrors(t *testing.T) {
	reg := schema.NewRegistry()
	err := reg.LoadYAML(strings.NewReader("entities:\n  - name: X\n    columns:\n      - {name: a, type: uuid}\n"))
	assert.Error(t, err)

	reg = schema.NewRegistry()
	require.NoError(t, reg.LoadYAML(strings.NewReader("entities:\n  - name: X\n    columns:\n      - {name: a, type: varchar, validate: phone}\n")))
	_, err = reg.Descriptor("X")
	assert.True(t, tabula.IsMetadataError(err))
}
