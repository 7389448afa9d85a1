package feecond

// Context is an immutable snapshot of one registration, taken before
// evaluation. Evaluation is a pure tree walk over it and cannot fail.
type Context struct {
	// Parts maps a part shortname to whether the registrant has a
	// present-like status in that part.
	Parts map[string]bool
	// Fields maps a field name to its truthiness, derived from the
	// field's datatype by the caller.
	Fields map[string]bool

	AnyPart  bool
	AllParts bool
	IsMember bool
	IsOrga   bool
}

// Node is a compiled condition. Conditions are parsed once when a fee
// definition is saved and evaluated on every registration change.
type Node interface {
	Eval(ctx *Context) bool
}

type And struct {
	Left, Right Node
}

func (n *And) Eval(ctx *Context) bool {
	return n.Left.Eval(ctx) && n.Right.Eval(ctx)
}

type Or struct {
	Left, Right Node
}

func (n *Or) Eval(ctx *Context) bool {
	return n.Left.Eval(ctx) || n.Right.Eval(ctx)
}

type Not struct {
	Expr Node
}

func (n *Not) Eval(ctx *Context) bool {
	return !n.Expr.Eval(ctx)
}

// PartRef is true when the registrant is present in the named part.
type PartRef struct {
	Shortname string
}

func (n *PartRef) Eval(ctx *Context) bool {
	return ctx.Parts[n.Shortname]
}

// FieldRef is true when the named registration field is truthy.
type FieldRef struct {
	Name string
}

func (n *FieldRef) Eval(ctx *Context) bool {
	return ctx.Fields[n.Name]
}

type LiteralKind int

const (
	// True is the compiled form of an empty condition string.
	True LiteralKind = iota
	AnyPart
	AllParts
	IsMember
	IsOrga
)

type Literal struct {
	Kind LiteralKind
}

func (n *Literal) Eval(ctx *Context) bool {
	switch n.Kind {
	case AnyPart:
		return ctx.AnyPart
	case AllParts:
		return ctx.AllParts
	case IsMember:
		return ctx.IsMember
	case IsOrga:
		return ctx.IsOrga
	default:
		return true
	}
}
