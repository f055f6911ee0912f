package syncer

import "strings"

const (
	DeletedFlag = `\Deleted`
	RecentFlag  = `\Recent`
	// WildcardFlag in PERMANENTFLAGS allows any new keyword.
	WildcardFlag = `\*`
)

// FlagSet is a case-insensitive set of message flags.
type FlagSet struct {
	flags    map[string]struct{}
	keywords bool
}

// NewFlagSet returns a set of the given flags.
func NewFlagSet(flags ...string) FlagSet {
	s := FlagSet{flags: make(map[string]struct{}, len(flags))}
	for _, f := range flags {
		if f == WildcardFlag {
			s.keywords = true
			continue
		}
		s.flags[strings.ToLower(f)] = struct{}{}
	}
	return s
}

// Contains reports whether the flag may be set.
func (s FlagSet) Contains(flag string) bool {
	if strings.EqualFold(flag, RecentFlag) {
		return false
	}
	if _, ok := s.flags[strings.ToLower(flag)]; ok {
		return true
	}
	return s.keywords && !strings.HasPrefix(flag, `\`)
}

// ReconcileFlags keeps the flags supported by the destination, in order.
func ReconcileFlags(flags []string, supported FlagSet) []string {
	out := make([]string, 0, len(flags))
	for _, f := range flags {
		if supported.Contains(f) {
			out = append(out, f)
		}
	}
	return out
}

// supportedFlags is the set of flags a selected folder accepts on append.
func supportedFlags(st *FolderStatus) FlagSet {
	all := make([]string, 0, len(st.Flags)+len(st.PermanentFlags))
	all = append(all, st.Flags...)
	all = append(all, st.PermanentFlags...)
	return NewFlagSet(all...)
}

func hasAttribute(attrs []string, attr string) bool {
	for _, a := range attrs {
		if strings.EqualFold(a, attr) {
			return true
		}
	}
	return false
}
