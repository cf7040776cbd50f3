// Package marshal is the marshalling bridge from spec §4.G: it coerces
// between scriptif.Value and the wire-type signatures of method calls,
// signals, and property access, range-checking numeric narrowing and
// inferring variant types from the script value's own tag.
//
// The actual AllJoyn wire format is produced by the excluded bus layer
// (busif.Bus); this package's "raw" byte form is the canonical
// typed-value encoding that layer re-serializes, so ToWire/FromWire
// round-trip independently of any real transport.
package marshal

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/alljoynjs/ajcore/internal/corerr"
	"github.com/alljoynjs/ajcore/internal/scriptif"
)

// token is one parsed signature element.
type token struct {
	kind byte // the leading signature byte: b y n q i u x t d s o g a ( { v
	elem *token // array element type, for kind == 'a'
	members []token // struct member types, for kind == '('
	key, val *token // dict-entry key/value types, for kind == '{'
}

// ParseOne parses the first complete type from sig and returns it plus the
// remaining unparsed suffix.
func ParseOne(sig string) (token, string, error) {
	if sig == "" {
		return token{}, "", corerr.New(corerr.KindInvalid, "marshal.ParseOne")
	}
	c := sig[0]
	rest := sig[1:]
	switch c {
	case 'b', 'y', 'n', 'q', 'i', 'u', 'x', 't', 'd', 's', 'o', 'g', 'v':
		return token{kind: c}, rest, nil
	case 'a':
		if rest != "" && rest[0] == '{' {
			inner := rest[1:]
			var kt, vt token
			var err error
			kt, inner, err = ParseOne(inner)
			if err != nil {
				return token{}, "", err
			}
			vt, inner, err = ParseOne(inner)
			if err != nil {
				return token{}, "", err
			}
			if inner == "" || inner[0] != '}' {
				return token{}, "", corerr.New(corerr.KindInvalid, "marshal.ParseOne")
			}
			return token{kind: 'a', elem: &token{kind: '{', key: &kt, val: &vt}}, inner[1:], nil
		}
		elt, tail, err := ParseOne(rest)
		if err != nil {
			return token{}, "", err
		}
		return token{kind: 'a', elem: &elt}, tail, nil
	case '(':
		var members []token
		remaining := rest
		for remaining == "" || remaining[0] != ')' {
			if remaining == "" {
				return token{}, "", corerr.New(corerr.KindInvalid, "marshal.ParseOne")
			}
			var m token
			var err error
			m, remaining, err = ParseOne(remaining)
			if err != nil {
				return token{}, "", err
			}
			members = append(members, m)
		}
		return token{kind: '(', members: members}, remaining[1:], nil
	default:
		return token{}, "", corerr.Wrap(corerr.KindInvalid, "marshal.ParseOne", fmt.Errorf("unsupported signature byte %q", c))
	}
}

// ToWire coerces script arguments against a member signature (a
// concatenation of top-level types, e.g. "is" for an int then a string)
// into the canonical raw byte form, per the acceptance table in spec §4.G.
func ToWire(args []scriptif.Value, sig string) ([]byte, error) {
	var buf bytes.Buffer
	remaining := sig
	for i, v := range args {
		if remaining == "" {
			return nil, corerr.New(corerr.KindInvalid, "marshal.ToWire")
		}
		var tk token
		var err error
		tk, remaining, err = ParseOne(remaining)
		if err != nil {
			return nil, err
		}
		if err := encodeValue(&buf, tk, v); err != nil {
			return nil, corerr.Wrap(corerr.KindInvalid, fmt.Sprintf("marshal.ToWire[%d]", i), err)
		}
	}
	if remaining != "" {
		return nil, corerr.New(corerr.KindInvalid, "marshal.ToWire")
	}
	return buf.Bytes(), nil
}

// FromWire is the inverse of ToWire, rebuilding the script argument list
// from raw bytes and a member signature.
func FromWire(raw []byte, sig string) ([]scriptif.Value, error) {
	r := bytes.NewReader(raw)
	var out []scriptif.Value
	remaining := sig
	for remaining != "" {
		var tk token
		var err error
		tk, remaining, err = ParseOne(remaining)
		if err != nil {
			return nil, err
		}
		v, err := decodeValue(r, tk)
		if err != nil {
			return nil, corerr.Wrap(corerr.KindInvalid, "marshal.FromWire", err)
		}
		out = append(out, v)
	}
	return out, nil
}

func encodeValue(buf *bytes.Buffer, tk token, v scriptif.Value) error {
	switch tk.kind {
	case 'b':
		if v.Kind != scriptif.KindBool {
			return fmt.Errorf("expected boolean for signature 'b'")
		}
		return binary.Write(buf, binary.LittleEndian, v.B)
	case 'y':
		return encodeInt(buf, tk.kind, v, 0, 0xff)
	case 'n':
		return encodeInt(buf, tk.kind, v, -0x8000, 0x7fff)
	case 'q':
		return encodeInt(buf, tk.kind, v, 0, 0xffff)
	case 'i':
		return encodeInt(buf, tk.kind, v, -0x80000000, 0x7fffffff)
	case 'u':
		return encodeInt(buf, tk.kind, v, 0, 0xffffffff)
	case 'x':
		return encodeInt(buf, tk.kind, v, -1<<63, 1<<63-1)
	case 't':
		return encodeUint(buf, v)
	case 'd':
		if v.Kind != scriptif.KindNum {
			return fmt.Errorf("expected double for signature 'd'")
		}
		return binary.Write(buf, binary.LittleEndian, v.N)
	case 's', 'o', 'g':
		if v.Kind != scriptif.KindStr {
			return fmt.Errorf("expected string for signature %q", tk.kind)
		}
		return writeString(buf, v.S)
	case 'a':
		return encodeArray(buf, tk, v)
	case '(':
		return encodeStruct(buf, tk, v)
	case 'v':
		return encodeVariant(buf, v)
	default:
		return fmt.Errorf("unsupported signature byte %q", tk.kind)
	}
}

// encodeInt range-checks a script integer/uint against [lo, hi] (spec §4.G:
// "Numeric narrowing is range-checked; out-of-range is a typed error.").
func encodeInt(buf *bytes.Buffer, kind byte, v scriptif.Value, lo, hi int64) error {
	var n int64
	switch v.Kind {
	case scriptif.KindInt:
		n = v.I
	case scriptif.KindUInt:
		if v.U > uint64(hi) {
			return fmt.Errorf("value %d out of range for signature %q", v.U, kind)
		}
		n = int64(v.U)
	default:
		return fmt.Errorf("expected integer for signature %q", kind)
	}
	if n < lo || n > hi {
		return fmt.Errorf("value %d out of range for signature %q", n, kind)
	}
	return binary.Write(buf, binary.LittleEndian, n)
}

func encodeUint(buf *bytes.Buffer, v scriptif.Value) error {
	var n uint64
	switch v.Kind {
	case scriptif.KindUInt:
		n = v.U
	case scriptif.KindInt:
		if v.I < 0 {
			return fmt.Errorf("negative value not valid for signature 't'")
		}
		n = uint64(v.I)
	default:
		return fmt.Errorf("expected integer for signature 't'")
	}
	return binary.Write(buf, binary.LittleEndian, n)
}

func writeString(buf *bytes.Buffer, s string) error {
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := buf.WriteString(s)
	return err
}

func encodeArray(buf *bytes.Buffer, tk token, v scriptif.Value) error {
	elem := tk.elem
	if elem != nil && elem.kind == 'y' && v.Kind == scriptif.KindBuf {
		if err := binary.Write(buf, binary.LittleEndian, uint32(len(v.Buf))); err != nil {
			return err
		}
		_, err := buf.Write(v.Buf)
		return err
	}
	if elem != nil && elem.kind == '{' {
		if v.Kind != scriptif.KindObj {
			return fmt.Errorf("expected object for a{kv} dict")
		}
		if err := binary.Write(buf, binary.LittleEndian, uint32(len(v.Obj))); err != nil {
			return err
		}
		for k, val := range v.Obj {
			if err := encodeValue(buf, *elem.key, scriptif.Str(k)); err != nil {
				return err
			}
			if err := encodeValue(buf, *elem.val, val); err != nil {
				return err
			}
		}
		return nil
	}
	if v.Kind != scriptif.KindArr {
		return fmt.Errorf("expected array for signature 'a...'")
	}
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(v.Arr))); err != nil {
		return err
	}
	for _, e := range v.Arr {
		if err := encodeValue(buf, *elem, e); err != nil {
			return err
		}
	}
	return nil
}

func encodeStruct(buf *bytes.Buffer, tk token, v scriptif.Value) error {
	if v.Kind != scriptif.KindArr || len(v.Arr) != len(tk.members) {
		return fmt.Errorf("expected %d-element array for struct signature", len(tk.members))
	}
	for i, m := range tk.members {
		if err := encodeValue(buf, m, v.Arr[i]); err != nil {
			return err
		}
	}
	return nil
}

// encodeVariant infers the wire signature from the value's own tag, per
// spec §4.G's variant rule, and prefixes the encoded value with that
// inferred signature.
func encodeVariant(buf *bytes.Buffer, v scriptif.Value) error {
	sig, err := inferSignature(v)
	if err != nil {
		return err
	}
	if err := writeString(buf, sig); err != nil {
		return err
	}
	tk, _, err := ParseOne(sig)
	if err != nil {
		return err
	}
	return encodeValue(buf, tk, v)
}

func inferSignature(v scriptif.Value) (string, error) {
	switch v.Kind {
	case scriptif.KindBool:
		return "b", nil
	case scriptif.KindInt:
		return "x", nil
	case scriptif.KindUInt:
		return "t", nil
	case scriptif.KindNum:
		return "d", nil
	case scriptif.KindStr:
		return "s", nil
	case scriptif.KindBuf:
		return "ay", nil
	default:
		return "", fmt.Errorf("variant has no explicit type hint for kind %d", v.Kind)
	}
}

func decodeValue(r *bytes.Reader, tk token) (scriptif.Value, error) {
	switch tk.kind {
	case 'b':
		var b bool
		if err := binary.Read(r, binary.LittleEndian, &b); err != nil {
			return scriptif.Value{}, err
		}
		return scriptif.Bool(b), nil
	case 'y', 'n', 'q', 'i', 'u', 'x':
		var n int64
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return scriptif.Value{}, err
		}
		return scriptif.Int(n), nil
	case 't':
		var n uint64
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return scriptif.Value{}, err
		}
		return scriptif.UInt(n), nil
	case 'd':
		var f float64
		if err := binary.Read(r, binary.LittleEndian, &f); err != nil {
			return scriptif.Value{}, err
		}
		return scriptif.Num(f), nil
	case 's', 'o', 'g':
		s, err := readString(r)
		if err != nil {
			return scriptif.Value{}, err
		}
		return scriptif.Str(s), nil
	case 'a':
		return decodeArray(r, tk)
	case '(':
		return decodeStruct(r, tk)
	case 'v':
		return decodeVariant(r)
	default:
		return scriptif.Value{}, fmt.Errorf("unsupported signature byte %q", tk.kind)
	}
}

func readString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil && n > 0 {
		return "", err
	}
	return string(b), nil
}

func decodeArray(r *bytes.Reader, tk token) (scriptif.Value, error) {
	elem := tk.elem
	if elem != nil && elem.kind == 'y' {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return scriptif.Value{}, err
		}
		b := make([]byte, n)
		if _, err := r.Read(b); err != nil && n > 0 {
			return scriptif.Value{}, err
		}
		return scriptif.Buffer(b), nil
	}
	if elem != nil && elem.kind == '{' {
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return scriptif.Value{}, err
		}
		obj := make(map[string]scriptif.Value, n)
		for i := uint32(0); i < n; i++ {
			k, err := decodeValue(r, *elem.key)
			if err != nil {
				return scriptif.Value{}, err
			}
			val, err := decodeValue(r, *elem.val)
			if err != nil {
				return scriptif.Value{}, err
			}
			obj[k.S] = val
		}
		return scriptif.Object(obj), nil
	}
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return scriptif.Value{}, err
	}
	arr := make([]scriptif.Value, n)
	for i := uint32(0); i < n; i++ {
		v, err := decodeValue(r, *elem)
		if err != nil {
			return scriptif.Value{}, err
		}
		arr[i] = v
	}
	return scriptif.Array(arr), nil
}

func decodeStruct(r *bytes.Reader, tk token) (scriptif.Value, error) {
	arr := make([]scriptif.Value, len(tk.members))
	for i, m := range tk.members {
		v, err := decodeValue(r, m)
		if err != nil {
			return scriptif.Value{}, err
		}
		arr[i] = v
	}
	return scriptif.Array(arr), nil
}

func decodeVariant(r *bytes.Reader) (scriptif.Value, error) {
	sig, err := readString(r)
	if err != nil {
		return scriptif.Value{}, err
	}
	tk, _, err := ParseOne(sig)
	if err != nil {
		return scriptif.Value{}, err
	}
	return decodeValue(r, tk)
}

// Access is a property's declared accessibility.
type Access int

const (
	AccessR Access = iota
	AccessW
	AccessRW
)

// CheckAccess returns an error if op ("get" or "set") is not permitted by
// access, per spec §4.G's inbound property-access rule.
func CheckAccess(access Access, op string) error {
	switch {
	case op == "get" && access == AccessW:
		return corerr.New(corerr.KindInvalid, "marshal.CheckAccess")
	case op == "set" && access == AccessR:
		return corerr.New(corerr.KindInvalid, "marshal.CheckAccess")
	default:
		return nil
	}
}

// ReplyHandlers is the pair of callbacks a reply object exposes via
// onReply/onError, stored in the outgoing-call correlation table.
type ReplyHandlers struct {
	OnReply func(args []scriptif.Value)
	OnError func(name, msg string)
}

// Correlation tracks in-flight method calls keyed by outgoing serial, per
// spec §4.G step 4.
type Correlation struct {
	pending map[uint32]ReplyHandlers
}

// NewCorrelation builds an empty correlation table.
func NewCorrelation() *Correlation {
	return &Correlation{pending: make(map[uint32]ReplyHandlers)}
}

// Register installs handlers for an outgoing call's serial.
func (c *Correlation) Register(serial uint32, h ReplyHandlers) {
	c.pending[serial] = h
}

// Resolve delivers a successful reply to the serial's handlers, if any, and
// removes the entry.
func (c *Correlation) Resolve(serial uint32, args []scriptif.Value) bool {
	h, ok := c.pending[serial]
	if !ok {
		return false
	}
	delete(c.pending, serial)
	if h.OnReply != nil {
		h.OnReply(args)
	}
	return true
}

// Fail delivers an error reply to the serial's handlers, if any, and
// removes the entry.
func (c *Correlation) Fail(serial uint32, name, msg string) bool {
	h, ok := c.pending[serial]
	if !ok {
		return false
	}
	delete(c.pending, serial)
	if h.OnError != nil {
		h.OnError(name, msg)
	}
	return true
}

// Len reports the number of in-flight calls, for tests and diagnostics.
func (c *Correlation) Len() int { return len(c.pending) }
