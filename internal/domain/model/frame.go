// Package model contains domain models passed between layers.
package model

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Frame is one raw camera image of a recognition session, still encoded
// (JPEG, PNG, ...). Index is its position in the session.
type Frame struct {
	Index int
	Data  []byte
}

// DecodeDataURL turns a base64 payload, optionally prefixed with a
// "data:image/...;base64," header, into a Frame.
func DecodeDataURL(index int, s string) (Frame, error) {
	if i := strings.IndexByte(s, ','); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return Frame{}, fmt.Errorf("frame %d: %w: %w", index, ErrUndecodableFrame, err)
	}
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("frame %d: %w", index, ErrUndecodableFrame)
	}
	return Frame{Index: index, Data: data}, nil
}
