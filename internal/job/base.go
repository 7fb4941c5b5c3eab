package job

import "github.com/mfeuerstein/releasegate/internal/artifact"

// Base provides common plumbing for jobs (identity + IO contracts).
type Base struct {
	info     Info
	produces []artifact.Ref
	consumes []artifact.Ref
}

// NewBase seeds the helper with job info.
func NewBase(info Info) Base {
	return Base{info: info}
}

// SetProduces declares the artifacts written by the job.
func (b *Base) SetProduces(refs ...artifact.Ref) {
	b.produces = append([]artifact.Ref{}, refs...)
}

// SetConsumes declares the artifacts read by the job.
func (b *Base) SetConsumes(refs ...artifact.Ref) {
	b.consumes = append([]artifact.Ref{}, refs...)
}

// Info implements Job.Info.
func (b *Base) Info() Info {
	return b.info
}

// Produces implements Job.Produces.
func (b *Base) Produces() []artifact.Ref {
	return append([]artifact.Ref{}, b.produces...)
}

// Consumes implements Job.Consumes.
func (b *Base) Consumes() []artifact.Ref {
	return append([]artifact.Ref{}, b.consumes...)
}
