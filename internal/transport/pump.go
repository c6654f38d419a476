package transport

import (
	"fmt"
	"sync"
)

const pumpDepth = 64

type pumpResult struct {
	data []byte
	err  error
}

// pump turns a blocking read function into non-blocking chunk delivery. A
// single goroutine reads; results are delivered in order with the terminal
// error last.
type pump struct {
	results chan pumpResult
	ready   chan struct{}
	done    chan struct{}
	once    sync.Once
	err     error
}

func startPump(read func() ([]byte, error)) *pump {
	p := &pump{
		results: make(chan pumpResult, pumpDepth),
		ready:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go p.run(read)
	return p
}

func (p *pump) run(read func() ([]byte, error)) {
	for {
		data, err := read()
		if len(data) > 0 && !p.push(pumpResult{data: data}) {
			return
		}
		if err != nil {
			p.push(pumpResult{err: fmt.Errorf("%w: %w", ErrClosed, err)})
			return
		}
	}
}

func (p *pump) push(r pumpResult) bool {
	select {
	case p.results <- r:
	case <-p.done:
		return false
	}
	select {
	case p.ready <- struct{}{}:
	default:
	}
	return true
}

// next returns one buffered chunk, nil when nothing is pending, or the
// terminal error once every earlier chunk has been taken.
func (p *pump) next() ([]byte, error) {
	if p.err != nil {
		return nil, p.err
	}
	select {
	case r := <-p.results:
		if r.err != nil {
			p.err = r.err
			return nil, r.err
		}
		return r.data, nil
	default:
		return nil, nil
	}
}

// Ready is signalled after new results are queued.
func (p *pump) Ready() <-chan struct{} {
	return p.ready
}

func (p *pump) stop() {
	p.once.Do(func() { close(p.done) })
}
