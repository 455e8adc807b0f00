package evaluator

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/sandrolain/gorigami/pkg/tree"
	"github.com/sandrolain/gorigami/pkg/types"
)

// evalOperator applies a binary operator to evaluated operands.
//
// Arithmetic and comparisons propagate undefined: if either side is nil the
// result is nil. Equality is strict and never converts between types.
func (e *Evaluator) evalOperator(op types.Op, left, right interface{}) (interface{}, error) {
	switch op {
	case types.OpEqual:
		return strictEqual(left, right), nil
	case types.OpNotEqual:
		return !strictEqual(left, right), nil
	case types.OpAdd:
		return opAdd(left, right)
	}

	if left == nil || right == nil {
		return nil, nil
	}

	switch op {
	case types.OpLess, types.OpLessEqual, types.OpGreater, types.OpGreaterEqual:
		c, err := compareValues(op, left, right)
		if err != nil {
			return nil, err
		}
		switch op {
		case types.OpLess:
			return c < 0, nil
		case types.OpLessEqual:
			return c <= 0, nil
		case types.OpGreater:
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	}

	l, err := requireNumber(op, left)
	if err != nil {
		return nil, err
	}
	r, err := requireNumber(op, right)
	if err != nil {
		return nil, err
	}

	var result float64
	switch op {
	case types.OpSubtract:
		result = l - r
	case types.OpMultiply:
		result = l * r
	case types.OpDivide:
		result = l / r
	case types.OpRemainder:
		result = math.Mod(l, r)
	default:
		return nil, types.NewError(types.ErrInvalidProgram, fmt.Sprintf("%s is not an operator", op), -1)
	}
	if err := checkArithmeticResult(result); err != nil {
		return nil, err
	}
	return result, nil
}

// opAdd adds numbers and concatenates when either side is a string.
func opAdd(left, right interface{}) (interface{}, error) {
	_, ls := left.(string)
	_, rs := right.(string)
	if ls || rs {
		return textOf(left) + textOf(right), nil
	}
	if left == nil || right == nil {
		return nil, nil
	}
	l, err := requireNumber(types.OpAdd, left)
	if err != nil {
		return nil, err
	}
	r, err := requireNumber(types.OpAdd, right)
	if err != nil {
		return nil, err
	}
	result := l + r
	if err := checkArithmeticResult(result); err != nil {
		return nil, err
	}
	return result, nil
}

func requireNumber(op types.Op, v interface{}) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	}
	return 0, types.NewError(types.ErrInvalidOperand,
		fmt.Sprintf("%s operand must be a number, got %s", op, describe(v)), -1)
}

// checkArithmeticResult rejects NaN and infinite results.
func checkArithmeticResult(result float64) error {
	if math.IsNaN(result) || math.IsInf(result, 0) {
		return types.NewError(types.ErrInvalidOperand, "number out of range", -1)
	}
	return nil
}

// compareValues orders two numbers or two strings.
func compareValues(op types.Op, left, right interface{}) (int, error) {
	if ls, ok := left.(string); ok {
		if rs, ok := right.(string); ok {
			return strings.Compare(ls, rs), nil
		}
	}
	l, lok := left.(float64)
	r, rok := right.(float64)
	if !lok || !rok {
		return 0, types.NewError(types.ErrInvalidOperand,
			fmt.Sprintf("cannot compare %s with %s using %s", describe(left), describe(right), op), -1)
	}
	switch {
	case l < r:
		return -1, nil
	case l > r:
		return 1, nil
	}
	return 0, nil
}

// strictEqual compares scalars by value and everything else by identity.
func strictEqual(left, right interface{}) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	lt, rt := reflect.TypeOf(left), reflect.TypeOf(right)
	if lt != rt {
		return false
	}
	if lt.Comparable() {
		return left == right
	}
	// Slices and maps are equal only when they are the same value.
	lv, rv := reflect.ValueOf(left), reflect.ValueOf(right)
	switch lv.Kind() {
	case reflect.Slice:
		return lv.Len() == rv.Len() && lv.Pointer() == rv.Pointer()
	case reflect.Map, reflect.Func:
		return lv.Pointer() == rv.Pointer()
	}
	return false
}

// truthy reports whether v selects the first branch of a conditional.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil, types.Null:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	}
	return true
}

// concat joins the text of values, as untagged templates do.
func concat(ctx context.Context, values []interface{}) (interface{}, error) {
	var sb strings.Builder
	for _, v := range values {
		if err := writeText(ctx, &sb, v); err != nil {
			return nil, err
		}
	}
	return sb.String(), nil
}

// writeText writes the text of v. Arrays and trees contribute the text of
// their values in order; packed values are unpacked first.
func writeText(ctx context.Context, sb *strings.Builder, v interface{}) error {
	switch t := v.(type) {
	case nil, types.Null:
		return nil
	case string:
		sb.WriteString(t)
		return nil
	case []byte:
		sb.Write(t)
		return nil
	case []interface{}:
		for _, item := range t {
			if err := writeText(ctx, sb, item); err != nil {
				return err
			}
		}
		return nil
	case types.Function:
		return types.NewError(types.ErrInvalidOperand, "cannot insert a function into text", -1)
	case fmt.Stringer:
		if _, isTree := t.(types.Tree); !isTree {
			sb.WriteString(t.String())
			return nil
		}
	}

	if u, ok := v.(types.Unpackable); ok {
		unpacked, err := u.Unpack(ctx)
		if err != nil {
			return err
		}
		return writeText(ctx, sb, unpacked)
	}
	if t, ok := tree.From(v); ok {
		keys, err := t.Keys(ctx)
		if err != nil {
			return err
		}
		for _, k := range keys {
			item, err := t.Get(ctx, k)
			if err != nil {
				return err
			}
			if err := writeText(ctx, sb, item); err != nil {
				return err
			}
		}
		return nil
	}
	sb.WriteString(textOf(v))
	return nil
}

// textOf formats a scalar.
func textOf(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprint(v)
}

func describe(v interface{}) string {
	switch v.(type) {
	case nil:
		return "undefined"
	case string:
		return "a string"
	case float64, int:
		return "a number"
	case bool:
		return "a boolean"
	case types.Null:
		return "null"
	case types.Function:
		return "a function"
	}
	if tree.IsTreelike(v) {
		return "a tree"
	}
	return fmt.Sprintf("%T", v)
}
