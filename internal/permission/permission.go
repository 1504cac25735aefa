// Package permission evaluates the device permissions a KYC step needs.
package permission

import (
	"context"
	"fmt"
	"strings"
)

type Kind string

const (
	Camera     Kind = "camera"
	Microphone Kind = "microphone"
	Internet   Kind = "internet"
)

// KYCKinds are required before a video KYC call.
var KYCKinds = []Kind{Camera, Microphone, Internet}

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case Camera, Microphone, Internet:
		return k, nil
	}
	return "", fmt.Errorf("unknown permission kind %q", s)
}

type Status int

const (
	Pending Status = iota
	Granted
	Denied
)

func (s Status) String() string {
	switch s {
	case Granted:
		return "granted"
	case Denied:
		return "denied"
	default:
		return "pending"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "granted", "true":
		*s = Granted
	case "denied", "false":
		*s = Denied
	case "pending", "":
		*s = Pending
	default:
		return fmt.Errorf("unknown permission status %q", b)
	}
	return nil
}

// Checker reports the status of one permission for a subject.
type Checker interface {
	Check(ctx context.Context, subject string, kind Kind) (Status, error)
}

// Report is the folded result of checking several kinds.
type Report struct {
	Status   Status          `json:"status"`
	Statuses map[Kind]Status `json:"statuses"`
	Denied   []Kind          `json:"denied,omitempty"`
	Pending  []Kind          `json:"pending,omitempty"`
}

// DeniedNames lists the denied kinds as strings.
func (r Report) DeniedNames() []string {
	out := make([]string, len(r.Denied))
	for i, k := range r.Denied {
		out[i] = string(k)
	}
	return out
}

// Evaluate folds statuses: any Denied is Denied, else any Pending is
// Pending, else Granted.
func Evaluate(ctx context.Context, c Checker, subject string, kinds []Kind) (Report, error) {
	r := Report{Status: Granted, Statuses: make(map[Kind]Status, len(kinds))}
	for _, k := range kinds {
		st, err := c.Check(ctx, subject, k)
		if err != nil {
			return Report{}, fmt.Errorf("check %s: %w", k, err)
		}
		r.Statuses[k] = st
		switch st {
		case Denied:
			r.Denied = append(r.Denied, k)
		case Pending:
			r.Pending = append(r.Pending, k)
		}
	}
	switch {
	case len(r.Denied) > 0:
		r.Status = Denied
	case len(r.Pending) > 0:
		r.Status = Pending
	}
	return r, nil
}

// ParseReports reads device reports keyed by kind name, e.g.
// {"camera": "granted"}.
func ParseReports(raw map[string]string) (map[Kind]Status, error) {
	out := make(map[Kind]Status, len(raw))
	for name, v := range raw {
		kind, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		var st Status
		if err := st.UnmarshalText([]byte(v)); err != nil {
			return nil, err
		}
		out[kind] = st
	}
	return out, nil
}
