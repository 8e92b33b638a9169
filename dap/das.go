package dap

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gigapi/gigapi-dars/schema"
)

const indent = "    "

// TypeName is the DAP2 name of a datatype. DAP2 has no signed byte or
// char: chars are sent as Byte and signed bytes as Int16.
func TypeName(t schema.DataType) string {
	switch t {
	case schema.Byte, schema.Char:
		return "Byte"
	case schema.Int8, schema.Int16:
		return "Int16"
	case schema.UInt16:
		return "UInt16"
	case schema.Int32:
		return "Int32"
	case schema.UInt32:
		return "UInt32"
	case schema.Int64:
		return "Int64"
	case schema.UInt64:
		return "UInt64"
	case schema.Float32:
		return "Float32"
	case schema.Float64:
		return "Float64"
	case schema.String:
		return "String"
	}
	return t.String()
}

var quoter = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// attributeLine renders one attribute, without indentation.
func attributeLine(a schema.Attribute) string {
	switch a.Kind {
	case schema.AttrText:
		return fmt.Sprintf(`String %s "%s";`, a.Name, quoter.Replace(a.Text))
	case schema.AttrNumber, schema.AttrNumbers:
		vals := make([]string, 0, a.Len())
		if a.Type.IsFloat() {
			bits := 64
			if a.Type == schema.Float32 {
				bits = 32
			}
			for _, f := range a.Floats {
				vals = append(vals, strconv.FormatFloat(f, 'g', -1, bits))
			}
		} else {
			for _, n := range a.Ints {
				vals = append(vals, strconv.FormatInt(n, 10))
			}
		}
		return fmt.Sprintf("%s %s %s;", TypeName(a.Type), a.Name, strings.Join(vals, ", "))
	}
	return ""
}

func writeAttributes(b *strings.Builder, attrs schema.Attributes) {
	for _, a := range attrs {
		line := attributeLine(a)
		if line == "" {
			continue
		}
		b.WriteString(indent + indent)
		b.WriteString(line)
		b.WriteByte('\n')
	}
}

// DAS renders the attribute response: global attributes under NC_GLOBAL,
// then one block per variable in declaration order.
func DAS(ds *schema.Dataset) string {
	var b strings.Builder
	b.WriteString("Attributes {\n")
	b.WriteString(indent + "NC_GLOBAL {\n")
	writeAttributes(&b, ds.Attributes())
	b.WriteString(indent + "}\n")
	for _, v := range ds.Variables() {
		b.WriteString(indent + v.Name + " {\n")
		writeAttributes(&b, v.Attributes)
		b.WriteString(indent + "}\n")
	}
	b.WriteString("}")
	return b.String()
}
