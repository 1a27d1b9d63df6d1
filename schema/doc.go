// Package schema holds the metadata of entity types: their table, ordered
// columns, indexes, named views and the relationship accessors derived from
// foreign key and many-to-many columns.
//
// # Declaring entities
//
// Entity types are registered on a Registry with an init function:
//
//	reg := schema.NewRegistry()
//	reg.MustRegister("Todo_List", func(d *schema.Def) {
//	    d.Fields(field.Varchar("name").Size(100).Required())
//	})
//	reg.MustRegister("Todo_Item", func(d *schema.Def) {
//	    d.Fields(
//	        field.Varchar("item").Size(250).Required(),
//	        field.Boolean("completed"),
//	        field.ForeignKey("list", "Todo_List"),
//	    )
//	    d.View("open", schema.View{Where: "completed = 0"})
//	})
//
// An "id" sequence column is added when the entity does not declare one.
//
// # Relationships
//
// The first lookup builds the metadata of every registered type and seals the
// registry. Each relation column produces accessors on both sides:
//
//	Todo_Item.list -> Todo_Item.get_list       (foreign key)
//	               -> Todo_List.get_todo_item_list  (reverse, or get_<relate_name>_list)
//	Item.tags      -> Item.get_tags_list, Tag.get_item_list (many-to-many)
//
// Many-to-many relations are stored in a junction table named after the two
// lowercased entity names in lexicographic order: Foo and Bar use
// bar_foo_assoc whichever side declares the relation.
//
// Entities can also be declared in YAML, see File.
package schema
