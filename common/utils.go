package common

// OrDefault returns v, or def when v is the zero value of its type. Staging structs use it to fill the fields callers
// left unset.
func OrDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
