package syncer

import "strings"

// DefaultSeparatorSubstitute replaces destination separators found inside
// source folder names.
const DefaultSeparatorSubstitute = "_"

// PathMapper translates source folder paths into destination paths.
//
// When the two servers use different hierarchy separators the mapping is
// lossy: a destination separator that appears literally in a source name is
// replaced by the substitute and cannot be recovered.
type PathMapper struct {
	src, dst   string
	substitute string
}

// NewPathMapper returns a mapper between the given separators. An empty
// substitute means DefaultSeparatorSubstitute.
func NewPathMapper(srcSep, dstSep, substitute string) PathMapper {
	if substitute == "" {
		substitute = DefaultSeparatorSubstitute
	}
	return PathMapper{src: srcSep, dst: dstSep, substitute: substitute}
}

// Identity reports whether Map returns its input unchanged.
func (p PathMapper) Identity() bool {
	return p.src == p.dst || p.dst == ""
}

// Map returns the destination path for a source path.
func (p PathMapper) Map(path string) string {
	if p.Identity() {
		return path
	}
	// Substitution must come first, or the separators introduced by the
	// translation would be substituted away again.
	path = strings.ReplaceAll(path, p.dst, p.substitute)
	if p.src != "" {
		path = strings.ReplaceAll(path, p.src, p.dst)
	}
	return path
}

// separatorOf returns the delimiter of the first listed folder that has one.
func separatorOf(folders []Folder) string {
	for _, f := range folders {
		if f.Delimiter != "" {
			return f.Delimiter
		}
	}
	return ""
}
