package redisout

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse-host/gatehouse/internal/outbound"
)

// Test plan:
// 1. Test scalar replies convert to their typed results
// 2. Test nested arrays flatten in order
// 3. Test reply shapes with no typed representation are type errors

func TestConvertResultsScalars(t *testing.T) {
	tests := []struct {
		name  string
		reply interface{}
		want  []Result
	}{
		{"nil", nil, []Result{NilResult()}},
		{"integer", int64(42), []Result{Int64Result(42)}},
		{"status ok", "OK", []Result{StatusResult("OK")}},
		{"bulk string", "value", []Result{BinaryResult([]byte("value"))}},
		{"bytes", []byte{0x01, 0x02}, []Result{BinaryResult([]byte{0x01, 0x02})}},
		{"bool true", true, []Result{Int64Result(1)}},
		{"bool false", false, []Result{Int64Result(0)}},
		{"double", float64(2.5), []Result{BinaryResult([]byte("2.5"))}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := convertResults(tt.reply)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConvertResultsFlattensArrays(t *testing.T) {
	reply := []interface{}{
		int64(1),
		[]interface{}{"a", nil, []interface{}{"b"}},
		"OK",
	}
	got, err := convertResults(reply)
	require.NoError(t, err)
	assert.Equal(t, []Result{
		Int64Result(1),
		BinaryResult([]byte("a")),
		NilResult(),
		BinaryResult([]byte("b")),
		StatusResult("OK"),
	}, got)
}

func TestConvertResultsRejectsUnknownShapes(t *testing.T) {
	_, err := convertResults(map[interface{}]interface{}{"k": "v"})
	assert.Equal(t, outbound.CodeTypeError, outbound.CodeOf(err))

	// A bad element anywhere in a nested reply fails the whole conversion.
	_, err = convertResults([]interface{}{int64(1), map[interface{}]interface{}{}})
	assert.Equal(t, outbound.CodeTypeError, outbound.CodeOf(err))
}
