// Package objtable translates script-side interface and object
// definitions into wire-layer registered objects and introspectable
// interfaces, per spec §4.E.
package objtable

import (
	"fmt"
	"strings"

	"github.com/alljoynjs/ajcore/internal/busif"
	"github.com/alljoynjs/ajcore/internal/corerr"
	"github.com/alljoynjs/ajcore/internal/scriptif"
)

// PropertiesInterfaceName is the standard interface every built object
// gets appended, per spec §4.E.
const PropertiesInterfaceName = "org.freedesktop.DBus.Properties"

// ProxyObjectPath is the size-2 proxy table's rewritable slot: a single
// wire-layer object whose path is rewritten before every outbound call,
// so one registered slot can serve any dynamic target path (spec §4.E).
const ProxyObjectPath = "/_ajcore/proxy"

// DescribeFunc serves a localized description for a path, on demand.
type DescribeFunc func(path, lang string) string

// Table is the built object/interface table handed to the bus layer.
type Table struct {
	Interfaces []busif.InterfaceDesc
	Objects    []busif.ObjectDesc
	Describe   DescribeFunc
}

// Build walks engine's interfaceDefinition and objectDefinition maps and
// produces the wire-layer table, per spec §4.E.
func Build(engine scriptif.Engine) (*Table, error) {
	ifaceDefs := engine.InterfaceDefinitions()
	byName := make(map[string]scriptif.InterfaceDef, len(ifaceDefs))
	for _, d := range ifaceDefs {
		byName[d.Name] = d
	}

	t := &Table{}
	for _, d := range ifaceDefs {
		t.Interfaces = append(t.Interfaces, busif.InterfaceDesc{
			Name:    d.Name,
			Members: formatMembers(d),
		})
	}

	descriptions := map[string]string{}
	for _, od := range engine.ObjectDefinitions() {
		for _, ifname := range od.Interfaces {
			if _, ok := byName[ifname]; !ok {
				return nil, corerr.Wrap(corerr.KindInvalid, "objtable.Build",
					fmt.Errorf("object %s references unknown interface %s", od.Path, ifname))
			}
		}
		interfaces := append(append([]string{}, od.Interfaces...), PropertiesInterfaceName)
		t.Objects = append(t.Objects, busif.ObjectDesc{
			Path:        od.Path,
			Interfaces:  interfaces,
			Announced:   true,
			Description: od.Description,
		})
		if od.Description != "" {
			descriptions[od.Path] = od.Description
		}
	}

	// The size-2 proxy table: one slot whose path is rewritten per call.
	t.Objects = append(t.Objects, busif.ObjectDesc{
		Path:       ProxyObjectPath,
		Interfaces: nil,
		Announced:  false,
	})

	t.Describe = func(path, lang string) string {
		return descriptions[path]
	}

	return t, nil
}

// formatMembers produces the member-descriptor strings from spec §3:
// "[?|!]name[ arg_name<sig]...[ arg_name>sig]..." for methods/signals,
// "@name[<|>|=]sig" for properties. Entry 0 is the interface name itself.
func formatMembers(d scriptif.InterfaceDef) []string {
	out := make([]string, 0, len(d.Members)+1)
	out = append(out, d.Name)
	for _, m := range d.Members {
		switch m.Kind {
		case "method":
			out = append(out, formatCallMember('?', m))
		case "signal":
			out = append(out, formatCallMember('!', m))
		case "property":
			out = append(out, formatPropertyMember(m))
		}
	}
	return out
}

func formatCallMember(prefix byte, m scriptif.InterfaceMember) string {
	var b strings.Builder
	b.WriteByte(prefix)
	b.WriteString(m.Name)
	for _, a := range m.InArgs {
		b.WriteByte(' ')
		b.WriteString(a.Name)
		b.WriteByte('<')
		b.WriteString(a.Signature)
	}
	for _, a := range m.OutArgs {
		b.WriteByte(' ')
		b.WriteString(a.Name)
		b.WriteByte('>')
		b.WriteString(a.Signature)
	}
	return b.String()
}

func formatPropertyMember(m scriptif.InterfaceMember) string {
	access := "="
	switch m.Access {
	case "R":
		access = "<"
	case "W":
		access = ">"
	case "RW":
		access = "="
	}
	return "@" + m.Name + access + m.Signature
}
