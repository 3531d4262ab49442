package localkv

import "strings"

// sanitize maps an arbitrary KV key to a filesystem-safe name. Colons
// (the KV separator, spec §6.1) are left intact; path separators are
// escaped so a key never escapes its directory.
func sanitize(key string) string {
	return strings.NewReplacer("/", "_", "\\", "_").Replace(key)
}

func kindLockName(kind, key string) string {
	return kind + "__" + sanitize(key)
}
