package relay

import (
	"net/url"
	"strings"
)

// AppendQuery adds params to a redirect target without re-encoding it.
// Deep links such as "myapp://" have no host or path, and a parsed and
// re-serialized URL would lose the slashes.
func AppendQuery(target string, params url.Values) string {
	if len(params) == 0 {
		return target
	}
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + params.Encode()
}
