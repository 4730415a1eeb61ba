package protoutil

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func SliceEqualError[T proto.Message](a, b []T) error {
	if len(a) != len(b) {
		return fmt.Errorf("len(%d) != len(%d)", len(a), len(b))
	}

	for i := 0; i < len(a); i++ {
		if err := ProtoEqualError(a[i], b[i]); err != nil {
			return fmt.Errorf("mismatch[%d]: %w", i, err)
		}
	}

	return nil
}

func ProtoEqualError(a, b proto.Message) error {
	if !proto.Equal(a, b) {
		return fmt.Errorf("%v != %v", a, b)
	}

	return nil
}

// MustValue converts a Go value to a structpb.Value, panicking on unsupported
// types. Intended for building expected values in tests.
func MustValue(v any) *structpb.Value {
	val, err := structpb.NewValue(v)
	if err != nil {
		panic(err)
	}
	return val
}

// MustList builds a structpb.ListValue from Go values.
func MustList(vs ...any) *structpb.ListValue {
	list, err := structpb.NewList(vs)
	if err != nil {
		panic(err)
	}
	return list
}
