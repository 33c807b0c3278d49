package projections

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	domainLookup "congregation/internal/domain/lookup"
	domainMember "congregation/internal/domain/member"
)

// QueryLookups fetches the four reference tables concurrently.
// POST: the first failing fetch fails the whole set
func QueryLookups(ctx context.Context, store LookupLister) (domainLookup.Set, error) {
	var (
		set domainLookup.Set
		mu  sync.Mutex
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range domainLookup.Kinds {
		g.Go(func() error {
			rows, err := store.List(gctx, kind)
			if err != nil {
				return fmt.Errorf("load %s: %w", kind.Table(), err)
			}
			mu.Lock()
			set.Put(kind, rows)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return domainLookup.Set{}, err
	}
	return set, nil
}

// GetMemberFormResult carries what the add and edit forms render.
type GetMemberFormResult struct {
	Member  domainMember.Member
	Lookups domainLookup.Set
}

// GetMemberFormDeps holds dependencies for GetMemberForm.
type GetMemberFormDeps struct {
	MemberStore MemberGetter
	LookupStore LookupLister
}

// QueryGetMemberForm loads the lookups, plus the member when id > 0.
// POST: domainMember.ErrNotFound is passed through for an unknown id
func QueryGetMemberForm(ctx context.Context, id int64, deps GetMemberFormDeps) (GetMemberFormResult, error) {
	var result GetMemberFormResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		set, err := QueryLookups(gctx, deps.LookupStore)
		result.Lookups = set
		return err
	})
	if id > 0 {
		g.Go(func() error {
			m, err := deps.MemberStore.GetByID(gctx, id)
			result.Member = m
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return GetMemberFormResult{}, err
	}
	return result, nil
}
