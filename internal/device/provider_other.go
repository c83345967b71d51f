//go:build !linux && !darwin

package device

// HostProvider cannot read memory on this platform.
func HostProvider() Provider {
	return ProviderFunc(func() (Stats, error) {
		return Stats{}, ErrUnsupported
	})
}
