package sync

import (
	"sort"
	"time"
)

// FieldKind selects which conflict rule applies.
type FieldKind int

const (
	FieldContent FieldKind = iota
	FieldMetadataScalar
	FieldMetadataArray
	FieldDeletion
)

// Resolve merges local and remote DocumentState by field type:
// Content auto-merges (operational-transform-style append-if-differs,
// since this module has no full OT engine), MetadataScalar is
// last-write-wins by timestamp (local wins equal timestamps), MetadataArray
// is a set union, and the merged Version is the higher of the two.
func Resolve(local, remote DocumentState, localAt, remoteAt time.Time) DocumentState {
	merged := local
	merged.Content = mergeContent(local.Content, remote.Content)
	merged.Frontmatter = mergeFrontmatter(local.Frontmatter, remote.Frontmatter, localAt, remoteAt)

	if remote.Version > local.Version {
		merged.Version = remote.Version
	} else {
		merged.Version = local.Version
	}
	if remoteAt.After(localAt) {
		merged.LastModifiedBy = remote.LastModifiedBy
	} else {
		merged.LastModifiedBy = local.LastModifiedBy
	}
	return merged
}

// mergeContent auto-merges markdown text. Without a full operational
// transform engine, identical content is a no-op and divergent content is
// concatenated with a conflict marker, matching the CRDT's
// never-lose-data guarantee.
func mergeContent(local, remote string) string {
	if local == remote {
		return local
	}
	if local == "" {
		return remote
	}
	if remote == "" {
		return local
	}
	return local + "\n<<<<<<< remote\n" + remote + "\n>>>>>>>\n"
}

// mergeFrontmatter applies MetadataScalar (last-write-wins) and
// MetadataArray (set union) per key.
func mergeFrontmatter(local, remote map[string]any, localAt, remoteAt time.Time) map[string]any {
	out := make(map[string]any, len(local)+len(remote))
	for k, v := range local {
		out[k] = v
	}
	for k, rv := range remote {
		lv, exists := out[k]
		if !exists {
			out[k] = rv
			continue
		}
		larr, lok := asStringSlice(lv)
		rarr, rok := asStringSlice(rv)
		if lok && rok {
			out[k] = unionStrings(larr, rarr)
			continue
		}
		if remoteAt.After(localAt) {
			out[k] = rv
		}
	}
	return out
}

func asStringSlice(v any) ([]string, bool) {
	switch t := v.(type) {
	case []string:
		return t, true
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Tombstone is a Deletion marker with a recovery TTL.
type Tombstone struct {
	Path      string
	DeletedAt time.Time
	TTL       time.Duration
}

// Expired reports whether the tombstone's recovery window has elapsed.
func (t Tombstone) Expired(now time.Time) bool {
	return now.Sub(t.DeletedAt) > t.TTL
}
