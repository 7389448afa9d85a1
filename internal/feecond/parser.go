package feecond

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Grammar (precedence low to high):
//
//	expr  → and ('or' and)*
//	and   → not ('and' not)*
//	not   → 'not' not | term
//	term  → 'part.' SHORTNAME | 'field.' NAME
//	      | 'any_part' | 'all_parts' | 'is_member' | 'is_orga'
//	      | '(' expr ')'
//
// Part shortnames may contain dots and digits ("part.1.H."), so the
// lexer cuts part/field references as single tokens running up to the
// next whitespace or parenthesis.
var conditionLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "PartRef", Pattern: `part\.[^\s()]+`},
	{Name: "FieldRef", Pattern: `field\.[^\s()]+`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_]*`},
	{Name: "Paren", Pattern: `[()]`},
	{Name: "whitespace", Pattern: `\s+`},
})

type exprGrammar struct {
	First *andGrammar   `parser:"@@"`
	Rest  []*andGrammar `parser:"( 'or' @@ )*"`
}

type andGrammar struct {
	First *notGrammar   `parser:"@@"`
	Rest  []*notGrammar `parser:"( 'and' @@ )*"`
}

type notGrammar struct {
	Negated *notGrammar  `parser:"  'not' @@"`
	Term    *termGrammar `parser:"| @@"`
}

type termGrammar struct {
	Part  string       `parser:"  @PartRef"`
	Field string       `parser:"| @FieldRef"`
	Flag  string       `parser:"| @Ident"`
	Sub   *exprGrammar `parser:"| '(' @@ ')'"`
}

var conditionParser = participle.MustBuild[exprGrammar](
	participle.Lexer(conditionLexer),
	participle.UseLookahead(2),
)

var flagKinds = map[string]LiteralKind{
	"any_part":  AnyPart,
	"all_parts": AllParts,
	"is_member": IsMember,
	"is_orga":   IsOrga,
}

// Parse compiles a condition string into an evaluable tree. The empty
// string compiles to the constant true (an unconditional fee). Parse
// rejects malformed input and unknown identifiers; a Node returned by
// Parse can always be evaluated.
func Parse(condition string) (Node, error) {
	condition = strings.TrimSpace(condition)
	if condition == "" {
		return &Literal{Kind: True}, nil
	}

	tree, err := conditionParser.ParseString("", condition)
	if err != nil {
		return nil, fmt.Errorf("malformed condition: %w", err)
	}

	return compileExpr(tree)
}

// MustParse is Parse for conditions known to be valid, e.g. already
// validated at fee definition save time.
func MustParse(condition string) Node {
	node, err := Parse(condition)
	if err != nil {
		panic(err)
	}
	return node
}

func compileExpr(e *exprGrammar) (Node, error) {
	node, err := compileAnd(e.First)
	if err != nil {
		return nil, err
	}
	for _, rest := range e.Rest {
		right, err := compileAnd(rest)
		if err != nil {
			return nil, err
		}
		node = &Or{Left: node, Right: right}
	}
	return node, nil
}

func compileAnd(a *andGrammar) (Node, error) {
	node, err := compileNot(a.First)
	if err != nil {
		return nil, err
	}
	for _, rest := range a.Rest {
		right, err := compileNot(rest)
		if err != nil {
			return nil, err
		}
		node = &And{Left: node, Right: right}
	}
	return node, nil
}

func compileNot(n *notGrammar) (Node, error) {
	if n.Negated != nil {
		inner, err := compileNot(n.Negated)
		if err != nil {
			return nil, err
		}
		return &Not{Expr: inner}, nil
	}
	return compileTerm(n.Term)
}

func compileTerm(t *termGrammar) (Node, error) {
	switch {
	case t.Part != "":
		return &PartRef{Shortname: strings.TrimPrefix(t.Part, "part.")}, nil
	case t.Field != "":
		return &FieldRef{Name: strings.TrimPrefix(t.Field, "field.")}, nil
	case t.Flag != "":
		kind, ok := flagKinds[t.Flag]
		if !ok {
			return nil, fmt.Errorf("unknown identifier %q", t.Flag)
		}
		return &Literal{Kind: kind}, nil
	case t.Sub != nil:
		return compileExpr(t.Sub)
	}
	return nil, fmt.Errorf("empty term")
}
