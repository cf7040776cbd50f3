package marshal

import (
	"testing"

	"github.com/alljoynjs/ajcore/internal/scriptif"
)

func TestToWireFromWireRoundTripPrimitives(t *testing.T) {
	args := []scriptif.Value{scriptif.Int(42), scriptif.Str("hello"), scriptif.Bool(true)}
	raw, err := ToWire(args, "isb")
	if err != nil {
		t.Fatalf("ToWire: %v", err)
	}
	out, err := FromWire(raw, "isb")
	if err != nil {
		t.Fatalf("FromWire: %v", err)
	}
	if out[0].I != 42 || out[1].S != "hello" || out[2].B != true {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestToWireRangeChecksNarrowIntegers(t *testing.T) {
	_, err := ToWire([]scriptif.Value{scriptif.Int(300)}, "y")
	if err == nil {
		t.Fatalf("expected range-check error for byte overflow")
	}
}

func TestToWireBufferRoundTrip(t *testing.T) {
	raw, err := ToWire([]scriptif.Value{scriptif.Buffer([]byte{1, 2, 3})}, "ay")
	if err != nil {
		t.Fatalf("ToWire: %v", err)
	}
	out, err := FromWire(raw, "ay")
	if err != nil {
		t.Fatalf("FromWire: %v", err)
	}
	if len(out[0].Buf) != 3 || out[0].Buf[1] != 2 {
		t.Fatalf("buffer round trip mismatch: %+v", out)
	}
}

func TestToWireDictRoundTrip(t *testing.T) {
	obj := map[string]scriptif.Value{"a": scriptif.Str("1")}
	raw, err := ToWire([]scriptif.Value{scriptif.Object(obj)}, "a{ss}")
	if err != nil {
		t.Fatalf("ToWire: %v", err)
	}
	out, err := FromWire(raw, "a{ss}")
	if err != nil {
		t.Fatalf("FromWire: %v", err)
	}
	if out[0].Obj["a"].S != "1" {
		t.Fatalf("dict round trip mismatch: %+v", out)
	}
}

func TestVariantInfersTypeFromValueTag(t *testing.T) {
	raw, err := ToWire([]scriptif.Value{scriptif.Str("variant-string")}, "v")
	if err != nil {
		t.Fatalf("ToWire: %v", err)
	}
	out, err := FromWire(raw, "v")
	if err != nil {
		t.Fatalf("FromWire: %v", err)
	}
	if out[0].Kind != scriptif.KindStr || out[0].S != "variant-string" {
		t.Fatalf("expected inferred string variant, got %+v", out[0])
	}
}

func TestVariantRejectsValueWithNoTypeHint(t *testing.T) {
	_, err := ToWire([]scriptif.Value{scriptif.Null()}, "v")
	if err == nil {
		t.Fatalf("expected error for null with no explicit variant hint")
	}
}

func TestStructRoundTrip(t *testing.T) {
	arr := scriptif.Array([]scriptif.Value{scriptif.Int(1), scriptif.Str("x")})
	raw, err := ToWire([]scriptif.Value{arr}, "(is)")
	if err != nil {
		t.Fatalf("ToWire: %v", err)
	}
	out, err := FromWire(raw, "(is)")
	if err != nil {
		t.Fatalf("FromWire: %v", err)
	}
	if out[0].Arr[0].I != 1 || out[0].Arr[1].S != "x" {
		t.Fatalf("struct round trip mismatch: %+v", out)
	}
}

func TestCheckAccessRejectsDisallowedOperations(t *testing.T) {
	if err := CheckAccess(AccessR, "set"); err == nil {
		t.Fatalf("expected error setting a read-only property")
	}
	if err := CheckAccess(AccessW, "get"); err == nil {
		t.Fatalf("expected error getting a write-only property")
	}
	if err := CheckAccess(AccessRW, "get"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCorrelationRegisterResolveFail(t *testing.T) {
	c := NewCorrelation()
	var gotReply []scriptif.Value
	var gotErr string
	c.Register(5, ReplyHandlers{
		OnReply: func(args []scriptif.Value) { gotReply = args },
		OnError: func(name, msg string) { gotErr = msg },
	})
	if !c.Resolve(5, []scriptif.Value{scriptif.Int(7)}) {
		t.Fatalf("expected resolve to find pending serial")
	}
	if gotReply[0].I != 7 {
		t.Fatalf("expected reply delivered")
	}
	if c.Len() != 0 {
		t.Fatalf("expected correlation entry removed after resolve")
	}

	c.Register(6, ReplyHandlers{OnError: func(name, msg string) { gotErr = msg }})
	c.Fail(6, "org.example.Error", "boom")
	if gotErr != "boom" {
		t.Fatalf("expected error delivered")
	}
}
