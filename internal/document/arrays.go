package document

import "fmt"

// StringArray reads key as a JSON array of strings, stopping at the first
// absent index. Used for entity-file fields like "invokes" and "listens"
// that are plain string arrays rather than
// numeric leaves, so GetStableDoublePointer/Get don't apply.
func StringArray(d *Document, key string) []string {
	var out []string
	for i := 0; ; i++ {
		idxKey := fmt.Sprintf("%s[%d]", key, i)
		if MemberCheck(d, idxKey) == MemberAbsent {
			break
		}
		out = append(out, GetString(d, idxKey, ""))
	}
	return out
}

// Len reports how many elements key holds if it is an array, or 0
// otherwise.
func Len(d *Document, key string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := resolve(d.root, splitPath(key))
	if n == nil || n.kind != KindArray {
		return 0
	}
	return len(n.arr.items)
}
