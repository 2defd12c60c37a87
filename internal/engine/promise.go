package engine

import (
	"fmt"
	"sync"
)

// Promise is a one-shot, thread-safe value cell used to hand a result from
// the goroutine executing a plan to any number of readers. It is produced by
// exactly one writer and transitions Pending -> Succeeded|Failed, terminal
// once set. There is no timeout or cancellation; a promise that is never
// completed blocks its readers indefinitely.
type Promise struct {
	mu        sync.Mutex
	done      chan struct{}
	completed bool
	value     any
	err       error
}

// NewPromise returns a pending promise.
func NewPromise() *Promise {
	return &Promise{done: make(chan struct{})}
}

// Success completes the promise with a value. Completing a promise twice is
// a programmer error and panics.
func (p *Promise) Success(value any) {
	p.complete(value, nil)
}

// Failure completes the promise with an error. Completing a promise twice is
// a programmer error and panics.
func (p *Promise) Failure(err error) {
	if err == nil {
		panic("engine: Promise.Failure called with nil error")
	}
	p.complete(nil, err)
}

func (p *Promise) complete(value any, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.completed {
		panic(fmt.Sprintf("engine: promise already completed (value=%v err=%v)", p.value, p.err))
	}
	p.completed = true
	p.value = value
	p.err = err
	close(p.done)
}

// Get blocks the calling goroutine until the promise is terminal, then
// returns the value or the stored failure.
func (p *Promise) Get() (any, error) {
	<-p.done
	return p.value, p.err
}

// Done returns a channel closed once the promise is terminal.
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

// PromiseKey is the addressable handle for a previously resolved plan,
// identified by (subject, product type, optional configuration). It is
// distinct from the Promise future: a key resolves to a plan whose
// completion is observed through a Promise at execution time.
//
// Keys are comparable values; subject primaries and configurations must be
// comparable (entities are typically pointers).
type PromiseKey struct {
	subject       any
	product       ProductType
	configuration any
}

// NewPromiseKey builds the key for the given subject, product type, and
// optional configuration (nil for none).
func NewPromiseKey(subject Subject, product ProductType, configuration any) PromiseKey {
	return PromiseKey{subject: subject.Primary(), product: product, configuration: configuration}
}

// Subject returns the subject primary entity the key addresses.
func (k PromiseKey) Subject() any { return k.subject }

// Product returns the product type the key addresses.
func (k PromiseKey) Product() ProductType { return k.product }

// Configuration returns the configuration the key addresses, or nil.
func (k PromiseKey) Configuration() any { return k.configuration }

func (k PromiseKey) String() string {
	if k.configuration != nil {
		return fmt.Sprintf("Promise(%s for %s @ %s)", k.product, identityOf(k.subject), identityOf(k.configuration))
	}
	return fmt.Sprintf("Promise(%s for %s)", k.product, identityOf(k.subject))
}

// fingerprint renders the canonical identity used inside plan fingerprints.
func (k PromiseKey) fingerprint() string {
	return fmt.Sprintf("%s|%s|%s", identityOf(k.subject), k.product, identityOf(k.configuration))
}
