package feecond

import "fmt"

// Schema lists the part shortnames and field names an event defines.
// Conditions are validated against it when a fee definition is saved,
// so evaluation never encounters an unknown reference.
type Schema struct {
	Parts  map[string]bool
	Fields map[string]bool
}

func NewSchema(partShortnames, fieldNames []string) *Schema {
	s := &Schema{
		Parts:  make(map[string]bool, len(partShortnames)),
		Fields: make(map[string]bool, len(fieldNames)),
	}
	for _, p := range partShortnames {
		s.Parts[p] = true
	}
	for _, f := range fieldNames {
		s.Fields[f] = true
	}
	return s
}

// Validate parses the condition and checks every part and field
// reference against the schema. A nil schema only checks the syntax.
func Validate(condition string, schema *Schema) error {
	node, err := Parse(condition)
	if err != nil {
		return err
	}
	if schema == nil {
		return nil
	}
	return checkRefs(node, schema)
}

func checkRefs(node Node, schema *Schema) error {
	switch n := node.(type) {
	case *And:
		if err := checkRefs(n.Left, schema); err != nil {
			return err
		}
		return checkRefs(n.Right, schema)
	case *Or:
		if err := checkRefs(n.Left, schema); err != nil {
			return err
		}
		return checkRefs(n.Right, schema)
	case *Not:
		return checkRefs(n.Expr, schema)
	case *PartRef:
		if !schema.Parts[n.Shortname] {
			return fmt.Errorf("unknown part %q", n.Shortname)
		}
	case *FieldRef:
		if !schema.Fields[n.Name] {
			return fmt.Errorf("unknown field %q", n.Name)
		}
	}
	return nil
}
