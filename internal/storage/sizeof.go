package storage

// Per-object overhead constants for the byte accounting. The numbers are an
// approximation of Go's allocator cost for each shape, not exact sizes; what
// matters for eviction is that they are stable and monotonic in payload size.
const (
	entryOverhead  = 64 // Entry struct + map bucket share
	stringOverhead = 16
	elemOverhead   = 32 // per map entry or slice element
	collOverhead   = 48 // map or slice header
)

// entrySize estimates the resident cost of a key and its payload in bytes.
func entrySize(key string, t DataType, v any) int64 {
	return entryOverhead + int64(len(key)) + payloadSize(t, v)
}

func payloadSize(t DataType, v any) int64 {
	switch t {
	case TypeString:
		s, _ := v.(string)
		return stringOverhead + int64(len(s))
	case TypeHash:
		m, _ := v.(map[string]string)
		size := int64(collOverhead)
		for f, val := range m {
			size += elemOverhead + int64(len(f)) + int64(len(val))
		}
		return size
	case TypeList:
		l, _ := v.([]string)
		size := int64(collOverhead)
		for _, item := range l {
			size += elemOverhead + int64(len(item))
		}
		return size
	case TypeSet:
		m, _ := v.(map[string]struct{})
		size := int64(collOverhead)
		for member := range m {
			size += elemOverhead + int64(len(member))
		}
		return size
	case TypeZSet:
		m, _ := v.(map[string]float64)
		size := int64(collOverhead)
		for member := range m {
			size += elemOverhead + 8 + int64(len(member))
		}
		return size
	default:
		return collOverhead
	}
}
