package utils

// StrOrEmpty dereferences p or returns "".
func StrOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// StrPtr returns nil for "" and &s otherwise.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
