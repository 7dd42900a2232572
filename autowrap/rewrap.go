package autowrap

import "fmt"

// wrapRewrap refuses to wrap an artifact that already carries a pack.
func (c *Context) wrapRewrap(source, _ string) (bool, error) {
	return false, fmt.Errorf("tried to rewrap %s: %w", source, ErrRewrapNotImplemented)
}
