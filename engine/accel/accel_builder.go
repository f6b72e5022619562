package accel

// ManagerBuilderOption is a functional option for configuring a Manager.
type ManagerBuilderOption func(m *manager)

// WithBuildWorkers sets the number of worker goroutines that build bottom level structures.
// Defaults to runtime.NumCPU()-1.
//
// Parameters:
//   - n: the number of workers (minimum 1)
//
// Returns:
//   - ManagerBuilderOption: option function to apply
func WithBuildWorkers(n int) ManagerBuilderOption {
	return func(m *manager) {
		m.workers = max(n, 1)
	}
}
