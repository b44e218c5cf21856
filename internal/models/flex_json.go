package models

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"sync"
)

// inboundEventFieldMap caches JSON tag -> struct field index mappings
var (
	inboundEventFieldMap     map[string]int
	inboundEventFieldMapOnce sync.Once
)

func getInboundEventFieldMap() map[string]int {
	inboundEventFieldMapOnce.Do(func() {
		t := reflect.TypeOf(InboundEvent{})
		inboundEventFieldMap = make(map[string]int, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			tag := t.Field(i).Tag.Get("json")
			if tag == "" || tag == "-" {
				continue
			}
			name := strings.Split(tag, ",")[0]
			inboundEventFieldMap[name] = i
		}
	})
	return inboundEventFieldMap
}

// UnmarshalJSON accepts both native JSON types and string-encoded numbers.
// Producers built on dataframes stringify ids and counts ("fixture_id": "1035037",
// "home_corners": "4.0") or write integer columns as floats ("elapsed": 63.0);
// those are coerced to the field types. Integer fields only take integral values.
// Empty strings and nulls leave the field nil.
func (e *InboundEvent) UnmarshalJSON(data []byte) error {
	// Alias prevents infinite recursion
	type Alias InboundEvent
	a := (*Alias)(e)

	// Fast path: types match natively
	if err := json.Unmarshal(data, a); err == nil {
		return nil
	}

	// Slow path: field-by-field with string-to-native coercion
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("flex unmarshal: %w", err)
	}

	*e = InboundEvent{}
	fieldMap := getInboundEventFieldMap()
	v := reflect.ValueOf(a).Elem()

	for key, rawVal := range raw {
		idx, ok := fieldMap[key]
		if !ok {
			continue
		}

		fv := v.Field(idx)
		if !fv.CanSet() {
			continue
		}

		ptr := reflect.New(fv.Type())
		if err := json.Unmarshal(rawVal, ptr.Interface()); err == nil {
			fv.Set(ptr.Elem())
			continue
		}

		switch {
		case len(rawVal) > 1 && rawVal[0] == '"':
			// String value for a numeric field: coerce
			var str string
			if err := json.Unmarshal(rawVal, &str); err != nil {
				continue
			}
			str = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(str), "%"))
			if str == "" {
				continue
			}
			coerceStringToField(fv, str)
		case len(rawVal) > 0 && (rawVal[0] == '-' || (rawVal[0] >= '0' && rawVal[0] <= '9')):
			// Float literal for an integer field, e.g. 63.0 from a dataframe
			coerceStringToField(fv, string(rawVal))
		}
	}

	return nil
}

// coerceStringToField converts a string value to the field's native type,
// allocating pointer targets.
func coerceStringToField(fv reflect.Value, s string) {
	target := fv
	if fv.Kind() == reflect.Pointer {
		target = reflect.New(fv.Type().Elem()).Elem()
	}

	ok := false
	switch target.Kind() {
	case reflect.Float32, reflect.Float64:
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			target.SetFloat(n)
			ok = true
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// Integral values only: "1035037.0" is accepted, 63.5 is not.
		n, err := strconv.ParseFloat(s, 64)
		if err != nil || n != math.Trunc(n) || math.Abs(n) >= 1<<63 || target.OverflowInt(int64(n)) {
			break
		}
		target.SetInt(int64(n))
		ok = true
	case reflect.String:
		target.SetString(s)
		ok = true
	}

	if !ok {
		return
	}
	if fv.Kind() == reflect.Pointer {
		p := reflect.New(fv.Type().Elem())
		p.Elem().Set(target)
		fv.Set(p)
	}
}
