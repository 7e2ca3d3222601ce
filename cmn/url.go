package cmn

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// KV is a single option key/value pair, kept in insertion order inside
// ResourceURL.options and sorted only when serialized.
type KV struct {
	Key, Value string
}

// ResourceURL names a pool or resource:
// "type:<nodeid>[bucket]/path/name&opt=v&opt=v".
type ResourceURL struct {
	Type           string
	ReferenceNode  NodeID
	Bucket         Bucket
	Path           string
	Name           string
	options        []KV
}

// ParseResourceURL parses a string of the form
// "type:<nodeid>[bucket]/path/name&opt=v&opt=v". Any component may be
// omitted; Path defaults to "/".
func ParseResourceURL(raw string) (ResourceURL, error) {
	u := ResourceURL{Path: "/"}

	rest := raw
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		// Only treat the prefix as a type if it looks like one (no
		// '<', '[', '/' before the colon) -- otherwise a bare path
		// like "/a/b" would be misparsed.
		head := rest[:i]
		if !strings.ContainsAny(head, "<[/&") {
			u.Type = head
			rest = rest[i+1:]
		}
	}

	if strings.HasPrefix(rest, "<") {
		end := strings.IndexByte(rest, '>')
		if end < 0 {
			return ResourceURL{}, fmt.Errorf("kelpie: malformed resource url %q: unterminated node id", raw)
		}
		v, err := strconv.ParseUint(strings.TrimPrefix(rest[1:end], "0x"), 16, 64)
		if err != nil {
			return ResourceURL{}, fmt.Errorf("kelpie: malformed resource url %q: bad node id: %w", raw, err)
		}
		u.ReferenceNode = NodeID(v)
		rest = rest[end+1:]
	}

	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return ResourceURL{}, fmt.Errorf("kelpie: malformed resource url %q: unterminated bucket", raw)
		}
		b, err := NewBucket(rest[1:end])
		if err != nil {
			return ResourceURL{}, fmt.Errorf("kelpie: malformed resource url %q: %w", raw, err)
		}
		u.Bucket = b
		rest = rest[end+1:]
	}

	// split off options
	pathPart := rest
	if i := strings.IndexByte(rest, '&'); i >= 0 {
		pathPart = rest[:i]
		for _, opt := range strings.Split(rest[i+1:], "&") {
			if opt == "" {
				continue
			}
			kv := strings.SplitN(opt, "=", 2)
			if len(kv) == 2 {
				u.SetOption(kv[0], kv[1])
			} else {
				u.SetOption(kv[0], "")
			}
		}
	}

	if pathPart != "" {
		idx := strings.LastIndexByte(pathPart, '/')
		if idx < 0 {
			u.Path = "/"
			u.Name = pathPart
		} else {
			u.Path = pathPart[:idx]
			if u.Path == "" {
				u.Path = "/"
			}
			u.Name = pathPart[idx+1:]
		}
	}

	return u, nil
}

func (u *ResourceURL) SetOption(name, value string) {
	for i := range u.options {
		if u.options[i].Key == name {
			u.options[i].Value = value
			return
		}
	}
	u.options = append(u.options, KV{name, value})
}

func (u *ResourceURL) RemoveOption(name string) (value string) {
	for i := range u.options {
		if u.options[i].Key == name {
			value = u.options[i].Value
			u.options = append(u.options[:i], u.options[i+1:]...)
			return
		}
	}
	return ""
}

func (u ResourceURL) GetOption(name, dflt string) string {
	for _, kv := range u.options {
		if kv.Key == name {
			return kv.Value
		}
	}
	return dflt
}

// Options returns the option set in insertion order.
func (u ResourceURL) Options() []KV { return append([]KV(nil), u.options...) }

// SortedOptions returns "k=v&k=v" with keys sorted -- serialization is
// always canonicalized this way regardless of insertion order (spec §3).
func (u ResourceURL) SortedOptions() string {
	opts := append([]KV(nil), u.options...)
	sort.Slice(opts, func(i, j int) bool { return opts[i].Key < opts[j].Key })
	parts := make([]string, 0, len(opts))
	for _, kv := range opts {
		if kv.Value == "" {
			parts = append(parts, kv.Key)
		} else {
			parts = append(parts, kv.Key+"="+kv.Value)
		}
	}
	return strings.Join(parts, "&")
}

func (u ResourceURL) IsRoot() bool  { return u.Path == "/" && u.Name == "" }
func (u ResourceURL) Valid() bool   { return (u.Path != "" && u.Name != "") || u.IsRoot() }

// String renders the canonical full URL.
func (u ResourceURL) String() string {
	var b strings.Builder
	if u.Type != "" {
		b.WriteString(u.Type)
		b.WriteByte(':')
	}
	if !u.ReferenceNode.IsUnspecified() {
		fmt.Fprintf(&b, "<%s>", u.ReferenceNode)
	}
	if !u.Bucket.IsUnspecified() {
		fmt.Fprintf(&b, "[%s]", u.Bucket)
	}
	if u.Path != "" && u.Path != "/" {
		b.WriteString(u.Path)
	}
	b.WriteByte('/')
	b.WriteString(u.Name)
	if opts := u.SortedOptions(); opts != "" {
		b.WriteByte('&')
		b.WriteString(opts)
	}
	return b.String()
}
