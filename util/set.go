package util

func ToSet(str []string) map[string]bool {
	set := make(map[string]bool, len(str))
	for _, s := range str {
		set[s] = true
	}
	return set
}
