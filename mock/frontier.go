package mock

import (
	"context"

	"github.com/fwojciec/autofetch"
)

var _ autofetch.SeenSet = (*SeenSet)(nil)

// SeenSet is a mock implementation of autofetch.SeenSet.
type SeenSet struct {
	VisitFn func(url string) bool
}

func (s *SeenSet) Visit(url string) bool {
	return s.VisitFn(url)
}

var _ autofetch.DomainLimiter = (*DomainLimiter)(nil)

// DomainLimiter is a mock implementation of autofetch.DomainLimiter.
type DomainLimiter struct {
	WaitFn func(ctx context.Context, domain string) error
}

func (l *DomainLimiter) Wait(ctx context.Context, domain string) error {
	return l.WaitFn(ctx, domain)
}
