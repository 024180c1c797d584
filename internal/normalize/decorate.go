// Package normalize reshapes the raw fact bundles returned by the
// document-intelligence service into the scored category schema.
package normalize

import (
	"fmt"

	"github.com/sells-group/submission-intake/internal/model"
)

// ShapeError reports input that lacks a substructure the category schema
// requires.
type ShapeError struct {
	Category string
	Path     string
	Reason   string
}

func (e *ShapeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("normalize %s: %s", e.Category, e.Reason)
	}
	return fmt.Sprintf("normalize %s: %s: %s", e.Category, e.Path, e.Reason)
}

func shapeErr(category, path, format string, args ...any) *ShapeError {
	return &ShapeError{Category: category, Path: path, Reason: fmt.Sprintf(format, args...)}
}

// scorer looks up per-field confidence scores.
type scorer struct {
	scores *model.Object
}

func (s scorer) score(key string) model.Value {
	if v, ok := s.scores.Get(key); ok {
		return v
	}
	return model.String("")
}

// field wraps v with the score reported for key.
func (s scorer) field(key string, v model.Value) model.Node {
	score, ok := s.scores.Get(key)
	return model.FieldNode(model.NewScoredField(v, score, ok))
}

type decorator struct {
	scorer
	coerce bool
}

// section decorates every member of obj.
func (d decorator) section(obj *model.Object) model.Section {
	var out model.Section
	obj.Range(func(k string, v model.Value) bool {
		out.Set(k, d.node(k, v))
		return true
	})
	return out
}

// node applies the decoration rules to a single member: mappings recurse,
// sequences pass through, scalars become scored fields.
func (d decorator) node(key string, v model.Value) model.Node {
	switch v.Kind() {
	case model.KindObject:
		obj, _ := v.Object()
		return model.GroupNode(d.section(obj))
	case model.KindArray:
		if d.coerce {
			return model.RawNode(stringify(v))
		}
		return model.RawNode(v)
	default:
		if d.coerce {
			v = model.String(v.Text())
		}
		return d.field(key, v)
	}
}

// whole decorates v as a single field, whatever its shape.
func (d decorator) whole(key string, v model.Value) model.Node {
	return d.field(key, v)
}

// stringify converts every scalar inside v to its text form.
func stringify(v model.Value) model.Value {
	switch v.Kind() {
	case model.KindArray:
		items, _ := v.Items()
		out := make([]model.Value, len(items))
		for i, item := range items {
			out[i] = stringify(item)
		}
		return model.Array(out...)
	case model.KindObject:
		obj, _ := v.Object()
		out := model.NewObject()
		obj.Range(func(k string, member model.Value) bool {
			out.Set(k, stringify(member))
			return true
		})
		return model.FromObject(out)
	default:
		return model.String(v.Text())
	}
}

// optionalObject returns the object at key, or an empty object when the
// key is absent or null. Any other shape is an error.
func optionalObject(category, path string, parent model.Value, key string) (*model.Object, error) {
	v, ok := parent.Get(key)
	if !ok || v.IsNull() {
		return model.NewObject(), nil
	}
	obj, ok := v.Object()
	if !ok {
		return nil, shapeErr(category, joinPath(path, key), "expected object, got %s", v.Kind())
	}
	return obj, nil
}

// requiredData returns the "data" member of raw, which must exist and have
// the wanted kind.
func requiredData(category string, raw model.Value, want model.Kind) (model.Value, error) {
	if raw.Kind() != model.KindObject {
		return model.Value{}, shapeErr(category, "", "expected object, got %s", raw.Kind())
	}
	data, ok := raw.Get("data")
	if !ok {
		return model.Value{}, shapeErr(category, "data", "missing")
	}
	if data.Kind() != want {
		return model.Value{}, shapeErr(category, "data", "expected %s, got %s", want, data.Kind())
	}
	return data, nil
}

// bundle is one facts/options/scores triple.
type bundle struct {
	facts   *model.Object
	options *model.Object
	scores  *model.Object
}

// readBundle reads facts and options from parent and scores from
// scoresParent, which differ for categories that report scores at the top
// level.
func readBundle(category string, parent model.Value, path string, scoresParent model.Value, scoresPath string) (bundle, error) {
	facts, err := optionalObject(category, path, parent, "facts")
	if err != nil {
		return bundle{}, err
	}
	options, err := optionalObject(category, path, parent, "options")
	if err != nil {
		return bundle{}, err
	}
	scores, err := optionalObject(category, scoresPath, scoresParent, "scores")
	if err != nil {
		return bundle{}, err
	}
	return bundle{facts: facts, options: options, scores: scores}, nil
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// lift copies the named keys out of src in order, substituting def for any
// key that is absent.
func lift(src *model.Object, def func(key string) model.Value, keys ...string) *model.Object {
	out := model.NewObject()
	for _, k := range keys {
		if v, ok := src.Get(k); ok {
			out.Set(k, v)
		} else {
			out.Set(k, def(k))
		}
	}
	return out
}

func emptyString(string) model.Value { return model.String("") }
