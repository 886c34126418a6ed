package event

import "sync"

// ChannelEmitter forwards envelopes to a buffered channel with a blocking
// send. If the downstream consumer (the outbound publisher) falls behind,
// the engine stalls rather than drop a notification; each event is emitted
// exactly once and must reach the log.
type ChannelEmitter struct {
	out chan<- Envelope
}

func NewChannelEmitter(out chan<- Envelope) *ChannelEmitter {
	return &ChannelEmitter{out: out}
}

func (e *ChannelEmitter) Emit(env Envelope) {
	e.out <- env
}

// Recorder collects envelopes in memory. Test emitter.
type Recorder struct {
	mu       sync.Mutex
	envelope []Envelope
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(env Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envelope = append(r.envelope, env)
}

// Envelopes returns the recorded envelopes in emit order.
func (r *Recorder) Envelopes() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Envelope, len(r.envelope))
	copy(out, r.envelope)
	return out
}

// Last returns the most recent envelope, or a zero Envelope when none.
func (r *Recorder) Last() Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.envelope) == 0 {
		return Envelope{}
	}
	return r.envelope[len(r.envelope)-1]
}
