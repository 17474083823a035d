package channel

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind tells which form a Ref carries.
type Kind int

const (
	// KindInvalid is the zero Ref.
	KindInvalid Kind = iota
	// KindHandle is a public @handle.
	KindHandle
	// KindID is a numeric platform chat id.
	KindID
)

func (k Kind) String() string {
	switch k {
	case KindHandle:
		return "handle"
	case KindID:
		return "id"
	default:
		return "invalid"
	}
}

// ErrInvalidRef is returned by Parse for input that is neither a handle nor an id.
var ErrInvalidRef = errors.New("invalid channel reference")

// Public usernames are 5-32 characters of letters, digits and underscores,
// starting with a letter.
var handlePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{3,31}$`)

// Ref references a channel by handle or by id. The zero value is invalid.
type Ref struct {
	kind   Kind
	handle string
	id     int64
}

// Handle returns a Ref for a public handle. The leading "@" is optional.
func Handle(h string) Ref {
	return Ref{kind: KindHandle, handle: strings.TrimPrefix(h, "@")}
}

// ID returns a Ref for a numeric chat id.
func ID(id int64) Ref {
	return Ref{kind: KindID, id: id}
}

// Parse converts user input into a Ref.
func Parse(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Ref{}, ErrInvalidRef
	}

	for _, prefix := range []string{"https://t.me/", "http://t.me/", "t.me/"} {
		if strings.HasPrefix(strings.ToLower(s), prefix) {
			s = s[len(prefix):]
			s = strings.TrimSuffix(s, "/")
			if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "joinchat/") {
				return Ref{}, fmt.Errorf("%w: private invite links cannot identify a channel, use its id", ErrInvalidRef)
			}
			break
		}
	}

	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		if id == 0 {
			return Ref{}, fmt.Errorf("%w: zero id", ErrInvalidRef)
		}
		return ID(id), nil
	}

	h := strings.TrimPrefix(s, "@")
	if !handlePattern.MatchString(h) {
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidRef, s)
	}
	return Handle(h), nil
}

// MustParse is Parse that panics on error. Intended for tests and constants.
func MustParse(s string) Ref {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Kind reports which form the Ref carries.
func (r Ref) Kind() Kind { return r.kind }

// IsValid reports whether the Ref carries a handle or an id.
func (r Ref) IsValid() bool {
	switch r.kind {
	case KindHandle:
		return r.handle != ""
	case KindID:
		return r.id != 0
	}
	return false
}

// Handle returns the handle without "@" when the Ref is a handle.
func (r Ref) Handle() (string, bool) {
	return r.handle, r.kind == KindHandle
}

// ID returns the numeric id when the Ref is an id.
func (r Ref) ID() (int64, bool) {
	return r.id, r.kind == KindID
}

// String returns the canonical form: "@handle" or the decimal id.
func (r Ref) String() string {
	switch r.kind {
	case KindHandle:
		return "@" + r.handle
	case KindID:
		return strconv.FormatInt(r.id, 10)
	default:
		return ""
	}
}

// Key is a case-insensitive identity used for map lookups. Handles are
// case-insensitive on the platform.
func (r Ref) Key() string {
	return strings.ToLower(r.String())
}

// Equal reports whether two refs name the same channel by the same form.
func (r Ref) Equal(o Ref) bool {
	return r.Key() == o.Key()
}

// Link returns the public join link for a handle, or "" for id refs.
func (r Ref) Link() string {
	if r.kind != KindHandle {
		return ""
	}
	return PublicLink(r.handle)
}

// PublicLink builds the canonical link for a public username.
func PublicLink(username string) string {
	return "https://t.me/" + strings.TrimPrefix(username, "@")
}

// MarshalText implements encoding.TextMarshaler.
func (r Ref) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, ErrInvalidRef
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Ref) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseList parses several references, dropping duplicates.
func ParseList(items []string) ([]Ref, error) {
	refs := make([]Ref, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		ref, err := Parse(item)
		if err != nil {
			return nil, err
		}
		if seen[ref.Key()] {
			continue
		}
		seen[ref.Key()] = true
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: no channels given", ErrInvalidRef)
	}
	return refs, nil
}

// Strings returns the canonical form of each ref.
func Strings(refs []Ref) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.String()
	}
	return out
}
