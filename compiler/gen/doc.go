// Package gen generates typed Go wrappers for registered entity types.
//
// Every entity gets one file holding a struct that wraps *model.Entity, a
// constructor, loaders, a typed getter and setter per column, and one typed
// method per relationship accessor:
//
//	get_list            -> func (x *TodoItem) GetList(ctx) (*TodoList, error)
//	get_todo_item_list  -> func (x *TodoList) GetTodoItemList(ctx, opts) ([]*TodoItem, error)
//
// Code is built with jennifer, formatted with goimports and written in
// parallel.
package gen
