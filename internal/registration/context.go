package registration

import (
	"kassenwart/internal/event"
	"kassenwart/internal/feecond"
)

// truthy derives the boolean value of a registration field for fee
// condition purposes: booleans directly, everything else non-null and
// non-zero.
func truthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case float64:
		// encoding/json decodes all JSON numbers as float64.
		return val != 0
	default:
		return true
	}
}

// BuildContext snapshots a registration into an evaluation context for
// the fee condition engine. The snapshot is detached from the database
// row, so hypothetical values may be substituted for dry runs.
func BuildContext(reg *Registration, parts []event.Part) (*feecond.Context, error) {
	ctx := &feecond.Context{
		Parts:    make(map[string]bool, len(parts)),
		Fields:   map[string]bool{},
		IsMember: reg.IsMember,
		IsOrga:   reg.IsOrga,
	}

	present := 0
	for _, p := range parts {
		isPresent := false
		if rp, ok := reg.Parts[p.ID]; ok {
			isPresent = rp.Status.IsPresent()
		}
		ctx.Parts[p.Shortname] = isPresent
		if isPresent {
			present++
		}
	}
	ctx.AnyPart = present > 0
	ctx.AllParts = len(parts) > 0 && present == len(parts)

	values, err := reg.FieldValues()
	if err != nil {
		return nil, err
	}
	for name, v := range values {
		ctx.Fields[name] = truthy(v)
	}

	return ctx, nil
}
