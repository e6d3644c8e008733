package transfer

// Progress tracks bytes moved for one transfer.
type Progress struct {
	Current int64
	Total   int64
	Percent float64
}

func newProgress(total int64) Progress {
	return Progress{Total: total}
}

func (p *Progress) set(current int64) {
	p.Current = current
	switch {
	case p.Total <= 0:
		p.Percent = 100
	case current >= p.Total:
		p.Percent = 100
	default:
		p.Percent = float64(current) / float64(p.Total) * 100
	}
}

// Done reports whether every declared byte has been accounted for.
func (p Progress) Done() bool {
	return p.Current >= p.Total
}
