package model

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// PlayerNumber is an optional per-session handle.
// The zero value is unassigned; assigned handles are always > 0.
type PlayerNumber struct {
	n int
}

// NumberOf returns an assigned handle for n > 0 and an unassigned one otherwise.
func NumberOf(n int) PlayerNumber {
	if n <= 0 {
		return PlayerNumber{}
	}
	return PlayerNumber{n: n}
}

// Get returns the handle and whether it is assigned
func (p PlayerNumber) Get() (int, bool) {
	return p.n, p.n > 0
}

// Assigned reports whether the handle identifies a real player
func (p PlayerNumber) Assigned() bool {
	return p.n > 0
}

func (p PlayerNumber) String() string {
	if !p.Assigned() {
		return "unassigned"
	}
	return strconv.Itoa(p.n)
}

func (p PlayerNumber) MarshalJSON() ([]byte, error) {
	if !p.Assigned() {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(p.n)), nil
}

func (p *PlayerNumber) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = PlayerNumber{}
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*p = NumberOf(int(f))
	return nil
}
