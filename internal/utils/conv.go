package utils

import (
	"fmt"
	"strconv"
)

// ParseID parses a positive database id from a path or query value.
func ParseID(s string) (uint, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return uint(n), nil
}

// ParseOptionalID is ParseID that accepts an empty value as "not given".
func ParseOptionalID(s string) (*uint, error) {
	if s == "" {
		return nil, nil
	}
	id, err := ParseID(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
