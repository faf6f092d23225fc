package relay

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoRegions = errors.New("no regions given")
	ErrPrivilege = errors.New("insufficient privileges")
)

type BadRegionError struct {
	Token      string
	Candidates []string
}

func (e *BadRegionError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("unknown region %q", e.Token)
	}
	return fmt.Sprintf("ambiguous region %q, candidates: %s", e.Token, strings.Join(e.Candidates, ", "))
}

type BadTagError struct {
	Token   string
	Allowed []string
}

func (e *BadTagError) Error() string {
	return fmt.Sprintf("unknown tag %q", e.Token)
}

// NoMessagesError reports a valid query that matched nothing. Window spans
// every per-region window that was searched.
type NoMessagesError struct {
	Regions []string
	Window  Window
	Tags    []string
}

func (e *NoMessagesError) Error() string {
	return fmt.Sprintf("no messages for %s between %s and %s",
		strings.Join(e.Regions, ", "),
		e.Window.From.Format("2006-01-02 15:04"),
		e.Window.To.Format("2006-01-02 15:04"),
	)
}

// StoreError wraps a persistence failure without altering it; errors.Is and
// errors.As see the underlying store error.
type StoreError struct {
	Op     string
	Region string
	Err    error
}

func (e *StoreError) Error() string {
	if e.Region != "" {
		return fmt.Sprintf("%s (%s): %v", e.Op, e.Region, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// PrivilegeError is raised by admin-adjacent operations when the caller's
// group is below the one required.
type PrivilegeError struct {
	Desired string
	Current string
}

func (e *PrivilegeError) Error() string {
	return fmt.Sprintf("group %s is required, current group is %s", e.Desired, e.Current)
}

func (e *PrivilegeError) Is(target error) bool {
	return target == ErrPrivilege
}
