package ctl

import "supctl/message"

// ProgressBar turns writes into NetProgress partial replies. Each write
// reports its length as the delta against the current total.
type ProgressBar struct {
	req   *Request
	total uint64
}

func (r *Request) ProgressBar(total uint64) *ProgressBar {
	return &ProgressBar{req: r, total: total}
}

func (p *ProgressBar) SetTotal(total uint64) {
	p.total = total
}

func (p *ProgressBar) Total() uint64 {
	return p.total
}

func (p *ProgressBar) Write(b []byte) (int, error) {
	if err := p.req.ReplyPartial(&message.NetProgress{Total: p.total, Delta: uint64(len(b))}); err != nil {
		return 0, err
	}
	return len(b), nil
}
