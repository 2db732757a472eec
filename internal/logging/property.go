package logging

// PropertyValue is a structured property value. The set of implementations is
// closed: Scalar, Sequence, Structure and Dictionary.
type PropertyValue interface {
	isPropertyValue()
}

// Scalar holds a primitive or an opaque object.
type Scalar struct {
	Value any
}

// Sequence is an ordered list of values.
type Sequence struct {
	Elements []PropertyValue
}

// Structure is an ordered list of named values with an optional type tag.
type Structure struct {
	TypeTag    string
	Properties []Property
}

// Dictionary maps scalar keys to values, preserving insertion order.
type Dictionary struct {
	Entries []DictionaryEntry
}

// Property is a named value inside a Structure.
type Property struct {
	Name  string
	Value PropertyValue
}

// DictionaryEntry is one key/value pair of a Dictionary.
type DictionaryEntry struct {
	Key   Scalar
	Value PropertyValue
}

func (Scalar) isPropertyValue()     {}
func (Sequence) isPropertyValue()   {}
func (Structure) isPropertyValue()  {}
func (Dictionary) isPropertyValue() {}

// ValueOf captures a plain Go value as a PropertyValue. Slices of any become
// sequences and map[string]any becomes a structure; everything else is a scalar.
func ValueOf(v any) PropertyValue {
	switch t := v.(type) {
	case PropertyValue:
		return t
	case []any:
		elems := make([]PropertyValue, len(t))
		for i, e := range t {
			elems[i] = ValueOf(e)
		}
		return Sequence{Elements: elems}
	case map[string]any:
		props := make([]Property, 0, len(t))
		for _, k := range sortedKeys(t) {
			props = append(props, Property{Name: k, Value: ValueOf(t[k])})
		}
		return Structure{Properties: props}
	default:
		return Scalar{Value: v}
	}
}
