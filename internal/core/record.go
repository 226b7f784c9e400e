package core

// MergeByKey folds additional into base by the value stored under key.
// Fields of a later record overwrite same-named fields of the earlier one;
// everything else is kept. Records lacking the key are dropped. The result keeps
// base order and appends keys first seen in additional. Inputs are not mutated.
func MergeByKey(key string, base, additional []Record) []Record {
	index := make(map[any]int, len(base)+len(additional))
	out := make([]Record, 0, len(base)+len(additional))

	fold := func(r Record) {
		k, ok := r[key]
		if !ok || !hashableKey(k) {
			return
		}
		if i, seen := index[k]; seen {
			for f, v := range r {
				out[i][f] = v
			}
			return
		}
		index[k] = len(out)
		out = append(out, r.Clone())
	}

	for _, r := range base {
		fold(r)
	}
	for _, r := range additional {
		fold(r)
	}
	return out
}

func hashableKey(v any) bool {
	switch v.(type) {
	case string, int, int64, float64, bool:
		return true
	}
	return false
}

// PickFields returns a new record holding only the listed keys that exist in r.
func PickFields(r Record, keys ...string) Record {
	out := make(Record, len(keys))
	for _, k := range keys {
		if v, ok := r[k]; ok {
			out[k] = v
		}
	}
	return out
}

func OmitFields(r Record, keys ...string) Record {
	drop := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	out := make(Record, len(r))
	for k, v := range r {
		if _, skip := drop[k]; !skip {
			out[k] = v
		}
	}
	return out
}

// IndexByID maps records by their id for lookups inside a stage.
func IndexByID(records []Record) map[string]Record {
	out := make(map[string]Record, len(records))
	for _, r := range records {
		if id := r.ID(); id != "" {
			out[id] = r
		}
	}
	return out
}
