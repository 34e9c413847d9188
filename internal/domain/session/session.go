// Package session models the per-client cart state kept between requests.
package session

import (
	"context"
	"strings"
)

// Level classifies a flashed notice.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

// Notice is a one-shot message shown to the visitor on their next page view.
type Notice struct {
	Level Level
	Text  string
}

// State is everything the storefront remembers about one visitor. It holds at
// most one staged coupon; staging another replaces it.
type State struct {
	Coupon  string
	Notices []Notice
}

// Stage sets code as the cart's coupon.
func (s *State) Stage(code string) {
	s.Coupon = strings.TrimSpace(code)
}

// Clear drops the staged coupon. It reports whether one was staged.
func (s *State) Clear() bool {
	had := s.Coupon != ""
	s.Coupon = ""
	return had
}

// Peek returns the staged coupon code, if any.
func (s *State) Peek() (string, bool) {
	return s.Coupon, s.Coupon != ""
}

// Flash queues a notice for the next read.
func (s *State) Flash(level Level, text string) {
	s.Notices = append(s.Notices, Notice{Level: level, Text: text})
}

// TakeNotices returns and removes all queued notices.
func (s *State) TakeNotices() []Notice {
	n := s.Notices
	s.Notices = nil
	return n
}

// Store loads and saves session state by opaque session id. Load of an unknown
// id returns an empty State, not an error.
type Store interface {
	Load(ctx context.Context, id string) (*State, error)
	Save(ctx context.Context, id string, s *State) error
}
