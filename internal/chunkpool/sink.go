package chunkpool

import "opctl/internal/model"

// sinkPool is the terminal pool kind (§4.1): it never schedules jobs. Add
// records a completed stripe produced by the last task directly into the
// accumulated output — there is no Extract/Completed round-trip because no
// job ever reads from a sink.
type sinkPool struct {
	cfg      Config
	recorded []model.ChunkStripe
	weight   int64
	count    int
	next     model.Cookie
}

func newSinkPool(cfg Config) *sinkPool { return &sinkPool{cfg: cfg} }

func (p *sinkPool) Kind() Kind { return KindSink }

func (p *sinkPool) Add(stripe model.ChunkStripe) model.Cookie {
	p.recorded = append(p.recorded, stripe)
	p.weight += stripe.DataWeight()
	p.count++
	c := p.next
	p.next++
	return c
}

func (p *sinkPool) Suspend(model.Cookie)                            {}
func (p *sinkPool) Resume(model.Cookie)                             {}
func (p *sinkPool) Reset(model.Cookie, model.ChunkStripe) error      { return ErrUnknownCookie }
func (p *sinkPool) Finish()                                         {}
func (p *sinkPool) Extract(model.NodeID) (Extraction, bool)         { return Extraction{}, false }
func (p *sinkPool) Completed(model.Cookie) error                    { return ErrUnknownCookie }
func (p *sinkPool) Failed(model.Cookie) error                       { return ErrUnknownCookie }
func (p *sinkPool) Aborted(model.Cookie) error                      { return ErrUnknownCookie }
func (p *sinkPool) Lost(model.Cookie) error                         { return ErrUnknownCookie }

func (p *sinkPool) JobCounter() (pending, running, completed int) { return 0, 0, p.count }

func (p *sinkPool) DataWeightCounter() (pending, running, completed, lostInFlight int64) {
	return 0, 0, p.weight, 0
}

func (p *sinkPool) Locality(model.NodeID) int64 { return 0 }

// Entries returns every stripe recorded into this sink so far, for the
// transaction pipeline to fold into the target OutputTable (§4.6).
func (p *sinkPool) Entries() []model.ChunkStripe { return p.recorded }
