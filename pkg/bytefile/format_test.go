package bytefile

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/loxvm/pkg/table"
	"github.com/kristofer/loxvm/pkg/value"
)

func internFor(t *table.Table) func(string) *value.String {
	return func(s string) *value.String {
		bytes := []byte(s)
		hash := value.HashBytes(bytes)
		if existing := t.FindInterned(bytes, hash); existing != nil {
			return existing
		}
		str := &value.String{Chars: bytes, Hash: hash}
		t.Set(str, value.NilValue)
		return str
	}
}

func chunkOpts() cmp.Option {
	return cmp.Options{
		cmp.AllowUnexported(value.Chunk{}, value.Value{}),
		cmpopts.IgnoreFields(value.Function{}, "Header"),
		cmpopts.IgnoreFields(value.String{}, "Header"),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	strings := table.New()
	intern := internFor(strings)

	c := value.NewChunk()
	c.Code = []byte{1, 2, 3, 4, 5}
	c.Lines = []int{1, 1, 1, 2, 2}
	c.Constants = []value.Value{
		value.IntValue(42),
		value.FloatValue(3.5),
		value.BoolValue(true),
		value.NilValue,
		value.AbsenceValue,
		value.RefValue(intern("hello")),
	}

	nested := &value.Function{
		Chunk: value.NewChunk(),
		Name:  intern("inner"),
		Arity: value.Arity{Fixed: 1, Optional: 0, Variadic: false},
		Kind:  value.FnFunction,
	}
	nested.Chunk.Code = []byte{9, 9}
	nested.Chunk.Lines = []int{3, 3}
	c.Constants = append(c.Constants, value.RefValue(nested))

	original := &value.Function{
		Chunk:        c,
		Name:         intern("outer"),
		Arity:        value.Arity{Fixed: 1, Optional: 2, Variadic: true},
		UpvalueCount: 2,
		Kind:         value.FnScript,
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(original, &buf))
	require.NotZero(t, buf.Len())

	decoded, err := Decode(&buf, intern)
	require.NoError(t, err)

	if diff := cmp.Diff(original, decoded, chunkOpts()); diff != "" {
		t.Errorf("round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeDecodeNullName(t *testing.T) {
	strings := table.New()
	intern := internFor(strings)

	fn := &value.Function{
		Chunk: value.NewChunk(),
		Name:  nil,
		Arity: value.Arity{},
		Kind:  value.FnScript,
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(fn, &buf))

	decoded, err := Decode(&buf, intern)
	require.NoError(t, err)
	require.Nil(t, decoded.Name)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte{0, 0, 0, 0}), func(s string) *value.String { return nil })
	require.Error(t, err)
}
