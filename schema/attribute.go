package schema

// AttrKind tags the variant held by an Attribute.
type AttrKind int

const (
	AttrText AttrKind = iota + 1
	AttrNumber
	AttrNumbers
)

// Attribute is a named value attached to a dataset or a variable. The value
// is one of: a string, a single number or an array of numbers. Numbers keep
// their element type; integer types use Ints, float types use Floats.
type Attribute struct {
	Name   string
	Kind   AttrKind
	Type   DataType
	Text   string
	Ints   []int64
	Floats []float64
}

func TextAttr(name, value string) Attribute {
	return Attribute{Name: name, Kind: AttrText, Type: String, Text: value}
}

func IntAttr(name string, t DataType, values ...int64) Attribute {
	return Attribute{Name: name, Kind: numberKind(len(values)), Type: t, Ints: values}
}

func FloatAttr(name string, t DataType, values ...float64) Attribute {
	return Attribute{Name: name, Kind: numberKind(len(values)), Type: t, Floats: values}
}

func numberKind(n int) AttrKind {
	if n == 1 {
		return AttrNumber
	}
	return AttrNumbers
}

// Len is the number of values held.
func (a Attribute) Len() int {
	switch a.Kind {
	case AttrText:
		return 1
	case AttrNumber, AttrNumbers:
		if a.Type.IsFloat() {
			return len(a.Floats)
		}
		return len(a.Ints)
	}
	return 0
}

// Attributes is an ordered attribute list.
type Attributes []Attribute

// Get looks an attribute up by name.
func (as Attributes) Get(name string) (Attribute, bool) {
	for _, a := range as {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

func (as Attributes) clone() Attributes {
	if as == nil {
		return nil
	}
	out := make(Attributes, len(as))
	copy(out, as)
	return out
}
