package model

import "strings"

// Merge overlays override onto base. Where both sides hold an object at
// the same key the merge recurses; anywhere else the override replaces the
// base value. Neither input is modified.
func Merge(base, override Value) Value {
	bo, bok := base.Object()
	oo, ook := override.Object()
	if !bok || !ook {
		return override.Clone()
	}

	out := bo.Clone()
	oo.Range(func(k string, ov Value) bool {
		if bv, ok := out.Get(k); ok {
			out.Set(k, Merge(bv, ov))
		} else {
			out.Set(k, ov.Clone())
		}
		return true
	})
	return FromObject(out)
}

// ChangedPaths lists the dotted paths, in override order, whose value the
// override changes or adds relative to base. Nested objects present on both
// sides are descended into; anything else is reported at its own path.
func ChangedPaths(base, override Value) []string {
	var out []string
	changedPaths(base, override, nil, &out)
	return out
}

func changedPaths(base, override Value, prefix []string, out *[]string) {
	oo, ok := override.Object()
	if !ok {
		return
	}
	oo.Range(func(k string, ov Value) bool {
		path := append(append([]string(nil), prefix...), k)
		bv, exists := base.Get(k)
		_, bObj := bv.Object()
		_, oObj := ov.Object()
		switch {
		case exists && bObj && oObj:
			changedPaths(bv, ov, path, out)
		case !exists || !bv.Equal(ov):
			*out = append(*out, strings.Join(path, "."))
		}
		return true
	})
}
