package gen

import (
	"strings"

	"github.com/go-openapi/inflect"
)

// reserved are the method names every wrapper defines.
var reserved = map[string]bool{
	"ID":     true,
	"Entity": true,
	"Create": true,
	"Update": true,
	"Delete": true,
	"String": true,
}

// typeName returns the Go type name of an entity: "Todo_Item" -> "TodoItem".
func typeName(entity string) string {
	return inflect.Camelize(entity)
}

// fileName returns the generated file name of an entity.
func fileName(entity string) string {
	return inflect.Underscore(typeName(entity)) + ".go"
}

// getterName returns the method name reading a column.
func getterName(column string) string {
	name := inflect.Camelize(column)
	if reserved[name] || strings.HasPrefix(name, "Get") || strings.HasPrefix(name, "Set") {
		name += "Field"
	}
	return name
}

// setterName returns the method name assigning a column.
func setterName(column string) string {
	return "Set" + inflect.Camelize(column)
}

// accessorName returns the method name of a relationship accessor:
// "get_todo_item_list" -> "GetTodoItemList".
func accessorName(method string) string {
	return inflect.Camelize(method)
}
