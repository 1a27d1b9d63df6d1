package gen

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/dave/jennifer/jen"

	"github.com/syssam/tabula/schema"
	"github.com/syssam/tabula/schema/field"
)

const (
	modelPkg = "github.com/syssam/tabula/model"
	header   = "Code generated by tabula, DO NOT EDIT."
)

// Config configures the code generation.
type Config struct {
	// Package is the name of the generated package.
	Package string
	// Target is the output directory.
	Target string
	// Workers is the number of files formatted and written in parallel.
	// It defaults to GOMAXPROCS.
	Workers int
}

// Generator renders one typed wrapper file per registered entity.
type Generator struct {
	reg *schema.Registry
	cfg Config
}

// New returns a generator for the entities of reg.
func New(reg *schema.Registry, cfg Config) (*Generator, error) {
	if cfg.Package == "" {
		return nil, errors.New("gen: missing package name")
	}
	if cfg.Target == "" {
		return nil, errors.New("gen: missing target directory")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Generator{reg: reg, cfg: cfg}, nil
}

// Files renders the wrapper of every entity, keyed by file name.
func (g *Generator) Files() (map[string]*jen.File, error) {
	descs, err := g.reg.Descriptors()
	if err != nil {
		return nil, err
	}
	files := make(map[string]*jen.File, len(descs))
	names := make(map[string]string, len(descs))
	for _, d := range descs {
		name := fileName(d.Name)
		if prev, ok := names[name]; ok {
			return nil, fmt.Errorf("gen: entities %q and %q both map to %s", prev, d.Name, name)
		}
		names[name] = d.Name
		files[name] = g.entityFile(d)
	}
	return files, nil
}

func (g *Generator) entityFile(d *schema.Descriptor) *jen.File {
	f := jen.NewFile(g.cfg.Package)
	f.HeaderComment(header)
	t := typeName(d.Name)

	f.Commentf("%sEntity is the registered name of %s.", t, t)
	f.Const().Id(t + "Entity").Op("=").Lit(d.Name)

	f.Commentf("%s wraps a %s entity with typed column and relationship methods.", t, d.Verbose)
	f.Type().Id(t).Struct(
		jen.Id("e").Op("*").Qual(modelPkg, "Entity"),
	)

	genConstructors(f, t)
	genEntityMethods(f, t)
	for _, c := range d.Columns {
		if c.Name == schema.ID {
			continue
		}
		genColumn(f, t, c)
	}
	for _, m := range d.Relations.Methods() {
		a, _ := d.Relations.Lookup(m)
		genAccessor(f, t, a)
	}
	return f
}

func recv(t string) *jen.Statement {
	return jen.Params(jen.Id("x").Op("*").Id(t))
}

func genConstructors(f *jen.File, t string) {
	ctx := jen.Id("ctx").Qual("context", "Context")
	client := jen.Id("c").Op("*").Qual(modelPkg, "Client")

	f.Commentf("New%s returns an unsaved %s with default values.", t, t)
	f.Func().Id("New"+t).Params(client.Clone()).Params(jen.Op("*").Id(t), jen.Error()).Block(
		jen.List(jen.Id("e"), jen.Err()).Op(":=").Id("c").Dot("New").Call(jen.Id(t+"Entity")),
		jen.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err())),
		jen.Return(jen.Op("&").Id(t).Values(jen.Id("e")), jen.Nil()),
	)

	f.Commentf("Wrap%s wraps e, which must be a %s entity. It returns nil for a nil e.", t, t)
	f.Func().Id("Wrap"+t).Params(jen.Id("e").Op("*").Qual(modelPkg, "Entity")).Op("*").Id(t).Block(
		jen.If(jen.Id("e").Op("==").Nil()).Block(jen.Return(jen.Nil())),
		jen.If(jen.Id("e").Dot("Name").Call().Op("!=").Id(t+"Entity")).Block(
			jen.Panic(jen.Qual("fmt", "Sprintf").Call(jen.Lit("wrapping %s entity as "+t), jen.Id("e").Dot("Name").Call())),
		),
		jen.Return(jen.Op("&").Id(t).Values(jen.Id("e"))),
	)

	f.Commentf("Get%s loads the %s with the given id.", t, t)
	f.Func().Id("Get"+t).Params(ctx.Clone(), client.Clone(), jen.Id("id").Int64()).Params(jen.Op("*").Id(t), jen.Error()).Block(
		jen.List(jen.Id("e"), jen.Err()).Op(":=").Id("c").Dot("Get").Call(jen.Id("ctx"), jen.Id(t+"Entity"), jen.Id("id")),
		jen.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err())),
		jen.Return(jen.Op("&").Id(t).Values(jen.Id("e")), jen.Nil()),
	)

	f.Commentf("List%s returns the %s rows matching opts.", t, t)
	f.Func().Id("List"+t).Params(ctx.Clone(), client.Clone(), jen.Id("opts").Qual(modelPkg, "ListOptions")).Params(jen.Index().Op("*").Id(t), jen.Error()).Block(
		jen.List(jen.Id("es"), jen.Err()).Op(":=").Id("c").Dot("GetList").Call(jen.Id("ctx"), jen.Id(t+"Entity"), jen.Id("opts")),
		jen.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err())),
		jen.Return(jen.Id("wrap"+t+"List").Call(jen.Id("es")), jen.Nil()),
	)

	f.Func().Id("wrap"+t+"List").Params(jen.Id("es").Index().Op("*").Qual(modelPkg, "Entity")).Index().Op("*").Id(t).Block(
		jen.Id("out").Op(":=").Make(jen.Index().Op("*").Id(t), jen.Len(jen.Id("es"))),
		jen.For(jen.List(jen.Id("i"), jen.Id("e")).Op(":=").Range().Id("es")).Block(
			jen.Id("out").Index(jen.Id("i")).Op("=").Op("&").Id(t).Values(jen.Id("e")),
		),
		jen.Return(jen.Id("out")),
	)
}

func genEntityMethods(f *jen.File, t string) {
	ctx := jen.Id("ctx").Qual("context", "Context")

	f.Comment("Entity returns the underlying entity.")
	f.Func().Add(recv(t)).Id("Entity").Params().Op("*").Qual(modelPkg, "Entity").Block(
		jen.Return(jen.Id("x").Dot("e")),
	)
	f.Comment("ID returns the primary key, zero for an unsaved row.")
	f.Func().Add(recv(t)).Id("ID").Params().Int64().Block(
		jen.Return(jen.Id("x").Dot("e").Dot("ID").Call()),
	)
	f.Func().Add(recv(t)).Id("Create").Params(ctx.Clone()).Error().Block(
		jen.Return(jen.Id("x").Dot("e").Dot("Create").Call(jen.Id("ctx"))),
	)
	f.Func().Add(recv(t)).Id("Update").Params(ctx.Clone()).Error().Block(
		jen.Return(jen.Id("x").Dot("e").Dot("Update").Call(jen.Id("ctx"))),
	)
	f.Func().Add(recv(t)).Id("Delete").Params(ctx.Clone()).Params(jen.Bool(), jen.Error()).Block(
		jen.Return(jen.Id("x").Dot("e").Dot("Delete").Call(jen.Id("ctx"))),
	)
	f.Func().Add(recv(t)).Id("String").Params().String().Block(
		jen.Return(jen.Id("x").Dot("e").Dot("String").Call()),
	)
}

// goType returns the Go type of a column value and the Entity method
// reading it, if one exists.
func goType(c *field.Descriptor) (jen.Code, string) {
	switch c.Type {
	case field.TypeBoolean:
		return jen.Bool(), "Bool"
	case field.TypeInteger, field.TypeForeignKey:
		return jen.Int64(), "Int"
	case field.TypeFloat:
		return jen.Float64(), ""
	case field.TypeDate, field.TypeDatetime:
		return jen.Qual("time", "Time"), ""
	case field.TypeManyToMany:
		return jen.Index().Int64(), ""
	case field.TypeBlob, field.TypeCompressed:
		return jen.Index().Byte(), ""
	}
	return jen.String(), "Str"
}

func genColumn(f *jen.File, t string, c *field.Descriptor) {
	typ, reader := goType(c)
	get := getterName(c.Name)
	var body []jen.Code
	if reader != "" {
		body = []jen.Code{jen.Return(jen.Id("x").Dot("e").Dot(reader).Call(jen.Lit(c.Name)))}
	} else {
		body = []jen.Code{
			jen.List(jen.Id("v"), jen.Id("_")).Op(":=").Id("x").Dot("e").Dot("Value").Call(jen.Lit(c.Name)).Assert(typ),
			jen.Return(jen.Id("v")),
		}
	}
	switch {
	case c.IsForeignKey():
		f.Commentf("%s returns the id referenced by the %s column, zero when unset.", get, c.Name)
	case c.IsManyToMany():
		f.Commentf("%s returns the ids associated through the %s column.", get, c.Name)
	case c.HelpText != "":
		f.Commentf("%s returns %s.", get, c.HelpText)
	}
	f.Func().Add(recv(t)).Id(get).Params().Add(typ).Block(body...)

	f.Func().Add(recv(t)).Id(setterName(c.Name)).Params(jen.Id("v").Add(typ)).Error().Block(
		jen.Return(jen.Id("x").Dot("e").Dot("Set").Call(jen.Lit(c.Name), jen.Id("v"))),
	)
	if c.Nullable {
		f.Commentf("Clear%s sets the %s column to NULL.", inflectName(c.Name), c.Name)
		f.Func().Add(recv(t)).Id("Clear"+inflectName(c.Name)).Params().Error().Block(
			jen.Return(jen.Id("x").Dot("e").Dot("Set").Call(jen.Lit(c.Name), jen.Nil())),
		)
	}
}

func inflectName(column string) string {
	return setterName(column)[len("Set"):]
}

func genAccessor(f *jen.File, t string, a *schema.Accessor) {
	name := accessorName(a.Method)
	target := typeName(a.Target)
	ctx := jen.Id("ctx").Qual("context", "Context")
	if !a.Kind.IsList() {
		f.Commentf("%s resolves the %s referenced by the %s column. It returns nil when the key is unset.", name, target, a.Column)
		f.Func().Add(recv(t)).Id(name).Params(ctx).Params(jen.Op("*").Id(target), jen.Error()).Block(
			jen.List(jen.Id("e"), jen.Err()).Op(":=").Id("x").Dot("e").Dot("Related").Call(jen.Id("ctx"), jen.Lit(a.Method)),
			jen.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err())),
			jen.Return(jen.Id("Wrap"+target).Call(jen.Id("e")), jen.Nil()),
		)
		return
	}
	f.Commentf("%s lists the related %s rows (%s).", name, target, a.Kind)
	f.Func().Add(recv(t)).Id(name).Params(ctx, jen.Id("opts").Qual(modelPkg, "ListOptions")).Params(jen.Index().Op("*").Id(target), jen.Error()).Block(
		jen.List(jen.Id("es"), jen.Err()).Op(":=").Id("x").Dot("e").Dot("RelatedList").Call(jen.Id("ctx"), jen.Lit(a.Method), jen.Id("opts")),
		jen.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Err())),
		jen.Return(jen.Id("wrap"+target+"List").Call(jen.Id("es")), jen.Nil()),
	)
}
