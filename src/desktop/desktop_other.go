//go:build !windows

package desktop

// New reports ErrUnsupported: layered, click-through overlay windows are only
// implemented for Windows.
func New() (Desktop, error) {
	return nil, ErrUnsupported
}
