// Package core provides penalty point parsing utilities.
//
// This file contains functions for parsing penalty weights from user input.
package core

import (
	"strconv"
	"strings"
)

// maxPenaltyPoints caps a single goal's weight so fund arithmetic stays far from overflow.
const maxPenaltyPoints = 1_000_000

// ParsePoints converts a form value to a positive penalty weight.
//
// Leading and trailing whitespace is ignored. Signs, decimals, zero and values
// above maxPenaltyPoints are rejected with ErrInvalidPoints.
//
// Examples:
//
//	ParsePoints("5")    -> 5, nil
//	ParsePoints(" 12 ") -> 12, nil
//	ParsePoints("0")    -> 0, ErrInvalidPoints
//	ParsePoints("1.5")  -> 0, ErrInvalidPoints
func ParsePoints(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidPoints
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, ErrInvalidPoints
	}
	if v <= 0 || v > maxPenaltyPoints {
		return 0, ErrInvalidPoints
	}
	return v, nil
}
