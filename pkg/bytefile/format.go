// Package bytefile implements binary serialization of compiled functions,
// so a source file can be compiled once and the resulting chunk reloaded
// directly on later runs without re-lexing and re-parsing (spec §6.3).
//
// Binary Format Layout:
//
//	[Header]
//	  Magic Number (4 bytes): "LOXB" (0x4C4F5842)
//	  Version (4 bytes): format version, currently 1
//
//	[LoxFunction]
//	  function_kind (4 bytes)
//	  fixed_arity   (4 bytes)
//	  optional_arity (4 bytes)
//	  variadic flag (4 bytes, 0 or 1)
//	  Chunk
//	  name String
//	  upvalue_count (4 bytes)
//
//	[Chunk]
//	  count (4 bytes) | count bytes of code | count x 4-byte line numbers | ValueArray
//
//	[ValueArray]
//	  count (4 bytes) | count Values
//
//	[Value]
//	  type_tag (1 byte) | payload sized by the tag: none for Nil and
//	  Absence, 1 byte for Bool, 4 bytes (int32) for Int, 8 bytes for
//	  Float. There is no fixed-width 8-byte payload slot.
//	  If the tag is Ref, it is followed by an object_kind (1 byte) and
//	  the object body. Only String and
//	  Function are serializable object kinds (spec §6.3); any other Ref
//	  constant reaching Encode is a compiler bug, not a runtime
//	  condition, so it is reported as an error rather than panicking.
//
//	[String]
//	  length (4 bytes) | length+1 bytes, NUL-terminated. Length -1
//	  encodes a null string.
package bytefile

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kristofer/loxvm/pkg/value"
)

const (
	magicNumber   uint32 = 0x4C4F5842 // "LOXB"
	formatVersion uint32 = 1
)

var byteOrder = binary.LittleEndian

// Encode writes fn and everything it transitively references (nested
// function constants, its name, string constants) to w as a single
// self-contained stream.
func Encode(fn *value.Function, w io.Writer) error {
	if err := binary.Write(w, byteOrder, magicNumber); err != nil {
		return fmt.Errorf("bytefile: write magic: %w", err)
	}
	if err := binary.Write(w, byteOrder, formatVersion); err != nil {
		return fmt.Errorf("bytefile: write version: %w", err)
	}
	return writeFunction(w, fn)
}

// Decode reads a stream produced by Encode and reconstructs the function
// it describes. intern is used for every String encountered so the
// result shares the VM's string table the same way a freshly compiled
// function would (spec §6.3 "reading allocates fresh objects through the
// same routines as the compiler").
func Decode(r io.Reader, intern func(string) *value.String) (*value.Function, error) {
	var magic, version uint32
	if err := binary.Read(r, byteOrder, &magic); err != nil {
		return nil, fmt.Errorf("bytefile: read magic: %w", err)
	}
	if magic != magicNumber {
		return nil, fmt.Errorf("bytefile: not a loxvm bytecode file (magic 0x%08X)", magic)
	}
	if err := binary.Read(r, byteOrder, &version); err != nil {
		return nil, fmt.Errorf("bytefile: read version: %w", err)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("bytefile: unsupported format version %d (want %d)", version, formatVersion)
	}
	return readFunction(r, intern)
}

func writeFunction(w io.Writer, fn *value.Function) error {
	if err := binary.Write(w, byteOrder, uint32(fn.Kind)); err != nil {
		return err
	}
	if err := binary.Write(w, byteOrder, uint32(fn.Arity.Fixed)); err != nil {
		return err
	}
	if err := binary.Write(w, byteOrder, uint32(fn.Arity.Optional)); err != nil {
		return err
	}
	variadic := uint32(0)
	if fn.Arity.Variadic {
		variadic = 1
	}
	if err := binary.Write(w, byteOrder, variadic); err != nil {
		return err
	}
	if err := writeChunk(w, fn.Chunk); err != nil {
		return fmt.Errorf("bytefile: chunk of %s: %w", functionLabel(fn), err)
	}
	nameStr := ""
	hasName := fn.Name != nil
	if hasName {
		nameStr = string(fn.Name.Chars)
	}
	if err := writeNullableString(w, hasName, nameStr); err != nil {
		return err
	}
	return binary.Write(w, byteOrder, uint32(fn.UpvalueCount))
}

func readFunction(r io.Reader, intern func(string) *value.String) (*value.Function, error) {
	var kind, fixed, optional, variadic uint32
	if err := binary.Read(r, byteOrder, &kind); err != nil {
		return nil, err
	}
	if err := binary.Read(r, byteOrder, &fixed); err != nil {
		return nil, err
	}
	if err := binary.Read(r, byteOrder, &optional); err != nil {
		return nil, err
	}
	if err := binary.Read(r, byteOrder, &variadic); err != nil {
		return nil, err
	}
	chunk, err := readChunk(r, intern)
	if err != nil {
		return nil, fmt.Errorf("bytefile: chunk: %w", err)
	}
	present, nameStr, err := readNullableString(r)
	if err != nil {
		return nil, err
	}
	var name *value.String
	if present {
		name = intern(nameStr)
	}
	var upvalueCount uint32
	if err := binary.Read(r, byteOrder, &upvalueCount); err != nil {
		return nil, err
	}
	return &value.Function{
		Chunk: chunk,
		Name:  name,
		Arity: value.Arity{
			Fixed:    int(fixed),
			Optional: int(optional),
			Variadic: variadic != 0,
		},
		UpvalueCount: int(upvalueCount),
		Kind:         value.FunctionKind(kind),
	}, nil
}

func functionLabel(fn *value.Function) string {
	if fn.Name == nil {
		return "<script>"
	}
	return string(fn.Name.Chars)
}

func writeChunk(w io.Writer, c *value.Chunk) error {
	if err := binary.Write(w, byteOrder, uint32(len(c.Code))); err != nil {
		return err
	}
	if _, err := w.Write(c.Code); err != nil {
		return err
	}
	for _, line := range c.Lines {
		if err := binary.Write(w, byteOrder, uint32(line)); err != nil {
			return err
		}
	}
	return writeValueArray(w, c.Constants)
}

func readChunk(r io.Reader, intern func(string) *value.String) (*value.Chunk, error) {
	var count uint32
	if err := binary.Read(r, byteOrder, &count); err != nil {
		return nil, err
	}
	code := make([]byte, count)
	if _, err := io.ReadFull(r, code); err != nil {
		return nil, err
	}
	lines := make([]int, count)
	for i := range lines {
		var l uint32
		if err := binary.Read(r, byteOrder, &l); err != nil {
			return nil, err
		}
		lines[i] = int(l)
	}
	constants, err := readValueArray(r, intern)
	if err != nil {
		return nil, err
	}
	c := value.NewChunk()
	c.Code = code
	c.Lines = lines
	c.Constants = constants
	return c, nil
}

func writeValueArray(w io.Writer, vs []value.Value) error {
	if err := binary.Write(w, byteOrder, uint32(len(vs))); err != nil {
		return err
	}
	for i, v := range vs {
		if err := writeValue(w, v); err != nil {
			return fmt.Errorf("constant %d: %w", i, err)
		}
	}
	return nil
}

func readValueArray(r io.Reader, intern func(string) *value.String) ([]value.Value, error) {
	var count uint32
	if err := binary.Read(r, byteOrder, &count); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	vs := make([]value.Value, count)
	for i := range vs {
		v, err := readValue(r, intern)
		if err != nil {
			return nil, fmt.Errorf("constant %d: %w", i, err)
		}
		vs[i] = v
	}
	return vs, nil
}

// Value type tags. Kept distinct from value.Kind's own numbering so the
// on-disk format doesn't silently break if the in-memory enum is ever
// reordered.
const (
	tagNil byte = iota
	tagBool
	tagInt
	tagFloat
	tagAbsence
	tagRef
)

const (
	objTagString byte = iota
	objTagFunction
)

func writeValue(w io.Writer, v value.Value) error {
	switch v.Kind {
	case value.Nil:
		return binary.Write(w, byteOrder, tagNil)
	case value.Bool:
		if err := binary.Write(w, byteOrder, tagBool); err != nil {
			return err
		}
		b := byte(0)
		if v.AsBool() {
			b = 1
		}
		return binary.Write(w, byteOrder, b)
	case value.Int:
		if err := binary.Write(w, byteOrder, tagInt); err != nil {
			return err
		}
		return binary.Write(w, byteOrder, v.AsInt())
	case value.Float:
		if err := binary.Write(w, byteOrder, tagFloat); err != nil {
			return err
		}
		return binary.Write(w, byteOrder, v.AsFloat())
	case value.Absence:
		return binary.Write(w, byteOrder, tagAbsence)
	case value.Ref:
		if err := binary.Write(w, byteOrder, tagRef); err != nil {
			return err
		}
		switch obj := v.AsObj().(type) {
		case *value.String:
			if err := binary.Write(w, byteOrder, objTagString); err != nil {
				return err
			}
			return writeNullableString(w, true, string(obj.Chars))
		case *value.Function:
			if err := binary.Write(w, byteOrder, objTagFunction); err != nil {
				return err
			}
			return writeFunction(w, obj)
		default:
			return fmt.Errorf("value kind %T is not serializable", obj)
		}
	default:
		return fmt.Errorf("unknown value kind %d", v.Kind)
	}
}

func readValue(r io.Reader, intern func(string) *value.String) (value.Value, error) {
	var tag byte
	if err := binary.Read(r, byteOrder, &tag); err != nil {
		return value.NilValue, err
	}
	switch tag {
	case tagNil:
		return value.NilValue, nil
	case tagBool:
		var b byte
		if err := binary.Read(r, byteOrder, &b); err != nil {
			return value.NilValue, err
		}
		return value.BoolValue(b != 0), nil
	case tagInt:
		var i int32
		if err := binary.Read(r, byteOrder, &i); err != nil {
			return value.NilValue, err
		}
		return value.IntValue(i), nil
	case tagFloat:
		var f float64
		if err := binary.Read(r, byteOrder, &f); err != nil {
			return value.NilValue, err
		}
		return value.FloatValue(f), nil
	case tagAbsence:
		return value.AbsenceValue, nil
	case tagRef:
		var objTag byte
		if err := binary.Read(r, byteOrder, &objTag); err != nil {
			return value.NilValue, err
		}
		switch objTag {
		case objTagString:
			present, s, err := readNullableString(r)
			if err != nil {
				return value.NilValue, err
			}
			if !present {
				return value.NilValue, nil
			}
			return value.RefValue(intern(s)), nil
		case objTagFunction:
			fn, err := readFunction(r, intern)
			if err != nil {
				return value.NilValue, err
			}
			return value.RefValue(fn), nil
		default:
			return value.NilValue, fmt.Errorf("unknown object tag %d", objTag)
		}
	default:
		return value.NilValue, fmt.Errorf("unknown value tag %d", tag)
	}
}

// writeNullableString implements the length -1 / NUL-terminated
// convention spec §6.3 describes for String: present=false writes a
// length of -1 and no bytes at all.
func writeNullableString(w io.Writer, present bool, s string) error {
	if !present {
		return binary.Write(w, byteOrder, int32(-1))
	}
	if err := binary.Write(w, byteOrder, int32(len(s))); err != nil {
		return err
	}
	if _, err := w.Write([]byte(s)); err != nil {
		return err
	}
	_, err := w.Write([]byte{0})
	return err
}

func readNullableString(r io.Reader) (present bool, s string, err error) {
	var length int32
	if err := binary.Read(r, byteOrder, &length); err != nil {
		return false, "", err
	}
	if length < 0 {
		return false, "", nil
	}
	buf := make([]byte, length+1)
	if _, err := io.ReadFull(r, buf); err != nil {
		return false, "", err
	}
	return true, string(buf[:length]), nil
}
