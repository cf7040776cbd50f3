package panel

import (
	"testing"

	"github.com/alljoynjs/ajcore/internal/scriptif"
)

func TestBuildSynthesizesPathsAndNestsChildren(t *testing.T) {
	widgets := []scriptif.WidgetDef{
		{Type: "container", Children: []scriptif.WidgetDef{
			{Type: "property", Value: scriptif.Int(5)},
		}},
	}
	tree := Build(widgets)
	if len(tree.Root) != 1 {
		t.Fatalf("expected 1 root widget")
	}
	root := tree.Root[0]
	if root.Path != PathPrefix+"/w0" {
		t.Fatalf("unexpected root path: %s", root.Path)
	}
	if len(root.Children) != 1 || root.Children[0].Path != root.Path+"/w0" {
		t.Fatalf("expected nested child path, got %+v", root.Children)
	}
	if len(tree.Objects) != 2 {
		t.Fatalf("expected 2 flattened objects, got %d", len(tree.Objects))
	}
}

func TestSetValueClampsToConfiguredRange(t *testing.T) {
	widgets := []scriptif.WidgetDef{{Type: "property", Value: scriptif.Int(0)}}
	tree := Build(widgets)
	node := tree.Root[0]
	node.Range = Range{HasRange: true, Min: 0, Max: 10}

	var notified scriptif.Value
	err := tree.SetValue(node.Path, scriptif.Int(99), func(n *Node, v scriptif.Value) { notified = v })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notified.I != 10 {
		t.Fatalf("expected clamp to max 10, got %d", notified.I)
	}
	if node.Value.I != 10 {
		t.Fatalf("expected stored value clamped, got %d", node.Value.I)
	}
}

func TestSetValueRejectsNonPropertyWidget(t *testing.T) {
	widgets := []scriptif.WidgetDef{{Type: "label"}}
	tree := Build(widgets)
	if err := tree.SetValue(tree.Root[0].Path, scriptif.Str("x"), nil); err == nil {
		t.Fatalf("expected error setting a non-property widget")
	}
}

func TestSetValueRejectsUnknownPath(t *testing.T) {
	tree := Build(nil)
	if err := tree.SetValue("/ControlPanel/missing", scriptif.Int(1), nil); err == nil {
		t.Fatalf("expected error for unknown widget path")
	}
}
