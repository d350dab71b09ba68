package replay

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/kolkov/dynprof/internal/prof/value"
)

// valueSpec is the mapping form of a trace value.
type valueSpec struct {
	Ref       *int                 `yaml:"ref"`
	New       *int                 `yaml:"new"`
	Kind      string               `yaml:"kind"`
	Elements  []yaml.Node          `yaml:"elements"`
	Props     map[string]yaml.Node `yaml:"props"`
	Name      string               `yaml:"name"`
	Builtin   string               `yaml:"builtin"`
	Undefined bool                 `yaml:"undefined"`
}

// heap maps trace object ids to the objects created for them.
type heap struct {
	objects map[int]*value.Object
}

func newHeap() *heap {
	return &heap{objects: make(map[int]*value.Object)}
}

// resolve converts a trace value. An absent node resolves to nil.
func (h *heap) resolve(n *yaml.Node) (any, error) {
	switch n.Kind {
	case 0:
		return nil, nil
	case yaml.ScalarNode:
		return scalar(n)
	case yaml.SequenceNode:
		arr := value.NewArray()
		for i := range n.Content {
			v, err := h.resolve(n.Content[i])
			if err != nil {
				return nil, err
			}
			arr.Elements = append(arr.Elements, v)
		}
		return arr, nil
	case yaml.MappingNode:
		var spec valueSpec
		if err := n.Decode(&spec); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return h.object(&spec, n.Line)
	case yaml.AliasNode:
		return h.resolve(n.Alias)
	default:
		return nil, fmt.Errorf("line %d: unsupported value", n.Line)
	}
}

// list resolves an argument list. An absent node gives a nil slice.
func (h *heap) list(n *yaml.Node) ([]any, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: args must be a list", n.Line)
	}
	out := make([]any, 0, len(n.Content))
	for _, c := range n.Content {
		v, err := h.resolve(c)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func scalar(n *yaml.Node) (any, error) {
	switch n.ShortTag() {
	case "!!null":
		return nil, nil
	case "!!bool":
		return strconv.ParseBool(n.Value)
	case "!!int", "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return f, nil
	default:
		return n.Value, nil
	}
}

func (h *heap) object(spec *valueSpec, line int) (any, error) {
	switch {
	case spec.Undefined:
		return value.Undefined, nil

	case spec.Builtin != "":
		f, ok := value.Builtin(spec.Builtin)
		if !ok {
			return nil, fmt.Errorf("line %d: unknown builtin %q", line, spec.Builtin)
		}
		return f, nil

	case spec.Ref != nil:
		o, ok := h.objects[*spec.Ref]
		if !ok {
			return nil, fmt.Errorf("line %d: reference to undeclared object %d", line, *spec.Ref)
		}
		return o, nil

	case spec.New != nil:
		id := *spec.New
		if _, dup := h.objects[id]; dup {
			return nil, fmt.Errorf("line %d: object %d declared twice", line, id)
		}
		var o *value.Object
		switch spec.Kind {
		case "array":
			o = value.NewArray()
		case "", "object":
			o = value.NewObject()
		case "function":
			o = value.NewFunction(spec.Name)
		default:
			return nil, fmt.Errorf("line %d: unknown object kind %q", line, spec.Kind)
		}
		// Registered first so elements may refer to the object itself.
		h.objects[id] = o
		for i := range spec.Elements {
			v, err := h.resolve(&spec.Elements[i])
			if err != nil {
				return nil, err
			}
			o.Elements = append(o.Elements, v)
		}
		for name, node := range spec.Props {
			v, err := h.resolve(&node)
			if err != nil {
				return nil, err
			}
			o.SetProp(name, v)
		}
		return o, nil
	}
	return nil, fmt.Errorf("line %d: value mapping needs one of ref, new, builtin or undefined", line)
}
