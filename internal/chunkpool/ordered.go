package chunkpool

import "opctl/internal/model"

// orderedPool preserves input order: one output cookie per contiguous range
// of ready stripes, extracted from the front of the queue (§4.1).
type orderedPool struct {
	base
	order []model.Cookie // insertion order, oldest first
}

func newOrderedPool(cfg Config) *orderedPool {
	return &orderedPool{base: newBase(cfg)}
}

func (p *orderedPool) Kind() Kind { return KindOrdered }

func (p *orderedPool) Add(stripe model.ChunkStripe) model.Cookie {
	c := p.addEntry(stripe)
	p.order = append(p.order, c)
	return c
}

func (p *orderedPool) Suspend(c model.Cookie) { p.suspend(c) }
func (p *orderedPool) Resume(c model.Cookie)  { p.resume(c) }

func (p *orderedPool) Reset(c model.Cookie, stripe model.ChunkStripe) error {
	e, ok := p.pending[c]
	if !ok {
		return ErrUnknownCookie
	}
	e.stripe = stripe
	e.suspendCnt = 0
	return nil
}

func (p *orderedPool) Finish() {}

// Extract takes a contiguous run of ready stripes starting at the oldest
// not-yet-extracted position, up to the job-size target. Order is preserved
// strictly: extraction stops at the first not-ready stripe.
func (p *orderedPool) Extract(node model.NodeID) (Extraction, bool) {
	var chosen []model.Cookie
	var stripes []model.ChunkStripe
	var weight int64

	for _, c := range p.order {
		e, ok := p.pending[c]
		if !ok || e.extractedAs != model.InvalidCookie {
			continue // already extracted earlier
		}
		if !p.ready(e) {
			break
		}
		chosen = append(chosen, c)
		stripes = append(stripes, e.stripe)
		weight += e.stripe.DataWeight()

		hitWeight := p.cfg.JobDataWeight > 0 && weight >= p.cfg.JobDataWeight
		hitCount := p.cfg.JobSliceCount > 0 && len(chosen) >= p.cfg.JobSliceCount
		if hitWeight || hitCount {
			break
		}
	}
	if len(chosen) == 0 {
		return Extraction{}, false
	}
	out := p.recordExtraction(chosen, stripes)
	return Extraction{
		OutputCookie: out,
		Stripes:      model.NewChunkStripeList(stripes),
		InputCookies: chosen,
	}, true
}

func (p *orderedPool) Completed(out model.Cookie) error {
	_, err := p.finishExtraction(out)
	return err
}

func (p *orderedPool) Failed(out model.Cookie) error {
	_, err := p.returnExtraction(out)
	return err
}

func (p *orderedPool) Aborted(out model.Cookie) error {
	_, err := p.returnExtraction(out)
	return err
}

func (p *orderedPool) Lost(out model.Cookie) error {
	_, err := p.lost(out)
	return err
}

func (p *orderedPool) JobCounter() (pending, running, completed int) { return p.jobCounter() }

func (p *orderedPool) DataWeightCounter() (pending, running, completed, lostInFlight int64) {
	return p.dataWeightCounter()
}

// Locality is meaningless for strict order preservation: only the head of
// the queue is ever extractable, so this reports its locality alone.
func (p *orderedPool) Locality(n model.NodeID) int64 {
	for _, c := range p.order {
		e, ok := p.pending[c]
		if !ok || e.extractedAs != model.InvalidCookie {
			continue
		}
		if !p.ready(e) {
			return 0
		}
		return int64(stripeLocality(&e.stripe, n))
	}
	return 0
}
