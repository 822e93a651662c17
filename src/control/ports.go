package control

// PortRange is an inclusive range of loopback ports.
type PortRange struct {
	Start int
	End   int
}

// normalized clamps to [1024, 65535] and orders the bounds.
func (r PortRange) normalized() PortRange {
	if r.Start < 1024 {
		r.Start = 1024
	}
	if r.End > 65535 {
		r.End = 65535
	}
	if r.End < r.Start {
		r.Start, r.End = r.End, r.Start
	}
	return r
}
