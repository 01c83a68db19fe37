package preflight

// Plan selects which checks Run performs.
type Plan struct {
	SourceAccessible  bool
	ReplicaAccessible bool
	ReplicaWritable   bool
	PathNesting       bool
}

// DefaultPlan enables every check.
func DefaultPlan() *Plan {
	return &Plan{
		SourceAccessible:  true,
		ReplicaAccessible: true,
		ReplicaWritable:   true,
		PathNesting:       true,
	}
}
