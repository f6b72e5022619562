package bind_group_provider

// BindGroupProviderOption is a functional option used to configure a BindGroupProvider during construction.
type BindGroupProviderOption func(*bindGroupProvider)

// WithCapacity pre-sizes the cache for the expected number of bind groups.
//
// Parameters:
//   - n: the expected number of keys
//
// Returns:
//   - BindGroupProviderOption: a function that sizes the cache
func WithCapacity(n int) BindGroupProviderOption {
	return func(p *bindGroupProvider) {
		p.slots = make(map[string]*slot, n)
	}
}
