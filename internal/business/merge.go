package business

// IdentityKey is the deduplication key of a record: its maps link when it
// has one, otherwise name and address joined by "|".
func IdentityKey(r Record) string {
	if r.MapsURI != "" {
		return r.MapsURI
	}
	return r.Name + "|" + r.Address
}

// Merge appends the records of incoming whose identity key is not already
// present. Existing entries always win and keep their order; added counts
// only records that were actually appended.
func Merge(existing, incoming []Record) (merged []Record, added int) {
	merged = make([]Record, 0, len(existing)+len(incoming))
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, r := range existing {
		seen[IdentityKey(r)] = struct{}{}
		merged = append(merged, r)
	}
	for _, r := range incoming {
		key := IdentityKey(r)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		merged = append(merged, r)
		added++
	}
	return merged, added
}
