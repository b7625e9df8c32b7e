// Package channels defines the outbound message channels. Implementations
// live in the telegram, email and discord subpackages.
package channels

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrUnknownChannel = errors.New("channels: unknown channel")
	ErrNoRecipient    = errors.New("channels: empty recipient")
	ErrInvalidConfig  = errors.New("channels: invalid config")
)

// Channel delivers plain text to one recipient. The recipient format is
// channel specific (chat id, email address, user id).
type Channel interface {
	Name() string
	Send(ctx context.Context, recipient, text string) error
}

// Registry maps channel names to implementations.
type Registry struct {
	mu sync.RWMutex
	m  map[string]Channel
}

func NewRegistry(chs ...Channel) *Registry {
	r := &Registry{m: map[string]Channel{}}
	for _, c := range chs {
		r.Register(c)
	}
	return r
}

// Register adds or replaces c under its lowercased name.
func (r *Registry) Register(c Channel) {
	if c == nil {
		return
	}
	r.mu.Lock()
	r.m[normalize(c.Name())] = c
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (Channel, error) {
	r.mu.RLock()
	c, ok := r.m[normalize(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
	}
	return c, nil
}

// Names lists registered channels in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.m))
	for n := range r.m {
		out = append(out, n)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

func normalize(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// Func adapts a function into a Channel; handy for tests and log-only setups.
type Func struct {
	ChannelName string
	SendFunc    func(ctx context.Context, recipient, text string) error
}

func (f Func) Name() string { return f.ChannelName }

func (f Func) Send(ctx context.Context, recipient, text string) error {
	return f.SendFunc(ctx, recipient, text)
}
