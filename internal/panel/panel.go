// Package panel is the control-panel and notifications bridge from spec
// §4.J: it walks a script-defined widget tree, synthesizes AllJoyn object
// paths, and routes inbound property Set calls back through
// onValueChanged with range clamping.
package panel

import (
	"fmt"

	"github.com/alljoynjs/ajcore/internal/busif"
	"github.com/alljoynjs/ajcore/internal/corerr"
	"github.com/alljoynjs/ajcore/internal/scriptif"
)

// PathPrefix is the root under which every synthesized widget path lives.
const PathPrefix = "/ControlPanel"

// Range is an optional inclusive clamp for a property widget's value.
type Range struct {
	HasRange bool
	Min, Max float64
}

// Node is one built widget: its synthesized path, its script-side
// definition, and (for properties) its current value and optional range.
type Node struct {
	Path     string
	Def      scriptif.WidgetDef
	Value    scriptif.Value
	Range    Range
	Children []*Node
}

// Tree is the assembled control-panel widget tree plus the flattened
// object list ready for RegisterObjectList.
type Tree struct {
	Root    []*Node
	Objects []busif.ObjectDesc
	byPath  map[string]*Node
}

// Build walks engine's widget definitions and synthesizes object paths,
// per spec §4.J's load() step.
func Build(widgets []scriptif.WidgetDef) *Tree {
	t := &Tree{byPath: make(map[string]*Node)}
	for i, w := range widgets {
		n := buildNode(t, PathPrefix, i, w)
		t.Root = append(t.Root, n)
	}
	return t
}

func buildNode(t *Tree, parentPath string, index int, def scriptif.WidgetDef) *Node {
	path := fmt.Sprintf("%s/w%d", parentPath, index)
	n := &Node{Path: path, Def: def, Value: def.Value}
	t.byPath[path] = n
	t.Objects = append(t.Objects, busif.ObjectDesc{
		Path:       path,
		Interfaces: widgetInterfaces(def.Type),
		Announced:  true,
	})
	for i, child := range def.Children {
		n.Children = append(n.Children, buildNode(t, path, i, child))
	}
	return n
}

func widgetInterfaces(widgetType string) []string {
	switch widgetType {
	case "property":
		return []string{"org.alljoyn.ControlPanel.Property"}
	case "action":
		return []string{"org.alljoyn.ControlPanel.Action"}
	case "dialog":
		return []string{"org.alljoyn.ControlPanel.Dialog"}
	case "container":
		return []string{"org.alljoyn.ControlPanel.Container"}
	default:
		return []string{"org.alljoyn.ControlPanel.Label"}
	}
}

// Find looks up a built node by its synthesized path.
func (t *Tree) Find(path string) *Node {
	return t.byPath[path]
}

// OnValueChanged is invoked after a value is clamped and stored, to let the
// caller run the script's onValueChanged and emit the wire signals.
type OnValueChanged func(n *Node, newValue scriptif.Value)

// SetValue takes the already-unmarshalled value of an inbound Set, clamps
// it to the widget's range if one exists, updates the stored value, and invokes
// onChanged so the caller can run onValueChanged(this) and emit
// valueChanged/metadataChanged, per spec §4.J.
func (t *Tree) SetValue(path string, v scriptif.Value, onChanged OnValueChanged) error {
	n := t.byPath[path]
	if n == nil {
		return corerr.New(corerr.KindInvalid, "panel.SetValue")
	}
	if n.Def.Type != "property" {
		return corerr.New(corerr.KindInvalid, "panel.SetValue")
	}
	clamped := clamp(v, n.Range)
	n.Value = clamped
	if onChanged != nil {
		onChanged(n, clamped)
	}
	return nil
}

func clamp(v scriptif.Value, r Range) scriptif.Value {
	if !r.HasRange {
		return v
	}
	switch v.Kind {
	case scriptif.KindInt:
		n := v.I
		if float64(n) < r.Min {
			n = int64(r.Min)
		}
		if float64(n) > r.Max {
			n = int64(r.Max)
		}
		return scriptif.Int(n)
	case scriptif.KindUInt:
		n := v.U
		if float64(n) < r.Min {
			n = uint64(r.Min)
		}
		if float64(n) > r.Max {
			n = uint64(r.Max)
		}
		return scriptif.UInt(n)
	case scriptif.KindNum:
		n := v.N
		if n < r.Min {
			n = r.Min
		}
		if n > r.Max {
			n = r.Max
		}
		return scriptif.Num(n)
	default:
		return v
	}
}
