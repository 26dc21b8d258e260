package supervisor

// LogEvent is published on a handle's log broadcast for every stdout/stderr
// line (spec §4.6.4). Stdout lines are broadcast verbatim; stderr lines
// carry an "ERROR: " prefix baked into Line.
type LogEvent struct {
	InstanceID string
	Line       string
}
