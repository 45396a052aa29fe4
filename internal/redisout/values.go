package redisout

import (
	"strconv"

	"github.com/gatehouse-host/gatehouse/internal/outbound"
)

// Parameter is a typed argument to a raw command.
type Parameter interface {
	isParameter()
	arg() interface{}
}

// Int64Parameter is an integer command argument.
type Int64Parameter int64

// BinaryParameter is a byte-string command argument.
type BinaryParameter []byte

func (Int64Parameter) isParameter()  {}
func (BinaryParameter) isParameter() {}

func (p Int64Parameter) arg() interface{}  { return int64(p) }
func (p BinaryParameter) arg() interface{} { return []byte(p) }

// ResultKind tags a Result variant.
type ResultKind int

const (
	ResultNil ResultKind = iota
	ResultStatus
	ResultInt64
	ResultBinary
)

// Result is one typed element of a raw command's reply.
type Result struct {
	Kind   ResultKind
	Status string
	Int    int64
	Bytes  []byte
}

// NilResult returns the nil reply.
func NilResult() Result { return Result{Kind: ResultNil} }

// StatusResult returns a simple-string reply.
func StatusResult(s string) Result { return Result{Kind: ResultStatus, Status: s} }

// Int64Result returns an integer reply.
func Int64Result(v int64) Result { return Result{Kind: ResultInt64, Int: v} }

// BinaryResult returns a byte-string reply.
func BinaryResult(b []byte) Result { return Result{Kind: ResultBinary, Bytes: b} }

// convertResults flattens a raw reply into the typed result list. Nested
// arrays and sets flatten in order; shapes with no typed representation
// (maps, attributes, pushes) are type errors rather than silent drops.
func convertResults(value interface{}) ([]Result, error) {
	var results []Result
	if err := appendResult(&results, value); err != nil {
		return nil, err
	}
	return results, nil
}

func appendResult(results *[]Result, value interface{}) error {
	switch v := value.(type) {
	case nil:
		*results = append(*results, NilResult())
	case int64:
		*results = append(*results, Int64Result(v))
	case string:
		// The wire protocol's simple strings and bulk strings both arrive
		// as string here; "OK" is the status guests rely on.
		if v == "OK" {
			*results = append(*results, StatusResult(v))
		} else {
			*results = append(*results, BinaryResult([]byte(v)))
		}
	case []byte:
		*results = append(*results, BinaryResult(v))
	case bool:
		if v {
			*results = append(*results, Int64Result(1))
		} else {
			*results = append(*results, Int64Result(0))
		}
	case float64:
		*results = append(*results, BinaryResult([]byte(strconv.FormatFloat(v, 'f', -1, 64))))
	case []interface{}:
		for _, element := range v {
			if err := appendResult(results, element); err != nil {
				return err
			}
		}
	default:
		return outbound.Errf(outbound.CodeTypeError, "unsupported reply shape %T", value)
	}
	return nil
}
