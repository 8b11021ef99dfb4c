// Package runtime holds the value model, the heap object subsystem, the
// interning hash table, and the mark-sweep collector shared by the compiler
// and the VM.
package runtime

import "strconv"

type ValueType uint8

const (
	ValNil ValueType = iota
	ValBool
	ValNumber
	ValObj
)

// Value is the runtime representation of every Sigil value. Nil, booleans
// and numbers live inline; everything else is a reference to a heap object.
type Value struct {
	Type    ValueType
	boolean bool
	number  float64
	obj     Object
}

func NilVal() Value            { return Value{Type: ValNil} }
func BoolVal(b bool) Value     { return Value{Type: ValBool, boolean: b} }
func NumberVal(n float64) Value { return Value{Type: ValNumber, number: n} }
func ObjVal(o Object) Value    { return Value{Type: ValObj, obj: o} }

func (v Value) IsNil() bool    { return v.Type == ValNil }
func (v Value) IsBool() bool   { return v.Type == ValBool }
func (v Value) IsNumber() bool { return v.Type == ValNumber }
func (v Value) IsObj() bool    { return v.Type == ValObj }

func (v Value) AsBool() bool      { return v.boolean }
func (v Value) AsNumber() float64 { return v.number }
func (v Value) AsObj() Object     { return v.obj }

func (v Value) AsString() *ObjString {
	s, _ := v.obj.(*ObjString)
	return s
}

func (v Value) IsString() bool {
	if v.Type != ValObj {
		return false
	}
	_, ok := v.obj.(*ObjString)
	return ok
}

// IsFalsey reports the language's truthiness rule: nil and false are falsey,
// everything else is truthy.
func (v Value) IsFalsey() bool {
	return v.Type == ValNil || (v.Type == ValBool && !v.boolean)
}

// Equals compares by structure for nil/bool/number and by identity for
// objects. String interning makes byte-equal strings identity-equal.
func (v Value) Equals(w Value) bool {
	if v.Type != w.Type {
		return false
	}
	switch v.Type {
	case ValNil:
		return true
	case ValBool:
		return v.boolean == w.boolean
	case ValNumber:
		return v.number == w.number
	case ValObj:
		return v.obj == w.obj
	}
	return false
}

func (v Value) String() string {
	switch v.Type {
	case ValNil:
		return "nil"
	case ValBool:
		if v.boolean {
			return "true"
		}
		return "false"
	case ValNumber:
		return FormatNumber(v.number)
	case ValObj:
		return v.obj.String()
	}
	return "nil"
}

// FormatNumber renders a number as the shortest decimal that round-trips.
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'g', -1, 64)
}
