package types

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// largest magnitude below which every integer is exactly representable as a float64
const maxExactInteger = 1 << 53

// UnmarshalJSON accepts both JSON strings and JSON numbers.
func (id *UserID) UnmarshalJSON(data []byte) error {
	s, err := decodeFlexibleID(data)
	if err != nil {
		return err
	}
	*id = UserID(s)
	return nil
}

// UnmarshalJSON accepts both JSON strings and JSON numbers.
func (id *LectureID) UnmarshalJSON(data []byte) error {
	s, err := decodeFlexibleID(data)
	if err != nil {
		return err
	}
	*id = LectureID(s)
	return nil
}

// UnmarshalJSON accepts both JSON strings and JSON numbers.
func (id *ClassroomID) UnmarshalJSON(data []byte) error {
	s, err := decodeFlexibleID(data)
	if err != nil {
		return err
	}
	*id = ClassroomID(s)
	return nil
}

// TECHNICAL DISCOVERY: browser clients send numeric database ids, so
// numbers are normalized to their decimal string form. Integral values in
// any spelling (7, 7.0, 7e0) map to the same id; other numbers keep their text.
func decodeFlexibleID(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", ErrInvalidID
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	if f, err := n.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) <= maxExactInteger {
		return strconv.FormatInt(int64(f), 10), nil
	}
	return n.String(), nil
}
