package storage

// globMatch implements Redis-style glob matching for KEYS:
// '*' any sequence, '?' one char, '[a-z]' and '[^abc]' classes, '\' escape.
func globMatch(pattern, s string) bool {
	if pattern == "*" || pattern == s {
		return true
	}

	pi, si := 0, 0
	starPi, starSi := -1, -1
	plen, slen := len(pattern), len(s)

	for si < slen {
		if pi < plen {
			switch pattern[pi] {
			case '*':
				starPi = pi + 1
				starSi = si
				pi++
				continue
			case '?':
				pi++
				si++
				continue
			case '[':
				ok, next := matchClass(pattern, pi, s[si])
				if next == -1 {
					return false // unclosed class
				}
				if ok {
					pi = next
					si++
					continue
				}
				if starPi != -1 {
					pi = starPi
					starSi++
					si = starSi
					continue
				}
				return false
			case '\\':
				if pi+1 < plen {
					pi++
				}
			}
			if pattern[pi] == s[si] {
				pi++
				si++
				continue
			}
		}
		if starPi != -1 {
			pi = starPi
			starSi++
			si = starSi
			continue
		}
		return false
	}

	for pi < plen && pattern[pi] == '*' {
		pi++
	}
	return pi == plen
}

// matchClass evaluates a [...] class starting at pattern[start] against c.
// Returns whether c matched and the index just past ']', or -1 if unclosed.
func matchClass(pattern string, start int, c byte) (bool, int) {
	i := start + 1
	n := len(pattern)
	negate := false
	if i < n && pattern[i] == '^' {
		negate = true
		i++
	}

	matched := false
	for i < n && pattern[i] != ']' {
		if i+2 < n && pattern[i+1] == '-' && pattern[i+2] != ']' {
			if pattern[i] <= c && c <= pattern[i+2] {
				matched = true
			}
			i += 3
		} else {
			if pattern[i] == c {
				matched = true
			}
			i++
		}
	}
	if i >= n {
		return false, -1
	}
	return matched != negate, i + 1
}
