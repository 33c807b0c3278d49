package projections

import (
	"context"

	"golang.org/x/sync/errgroup"

	"congregation/internal/adapters/storage/member"
	"congregation/internal/application/listutil"
	"congregation/internal/domain/filter"
	domainMember "congregation/internal/domain/member"
)

// GetMemberDirectoryQuery carries the directory request.
type GetMemberDirectoryQuery struct {
	Criteria filter.Criteria
	Sort     listutil.SortParams
	// Seq is the client's request generation, echoed back unchanged.
	Seq int64
	// WithStreets also loads the street suggestions for the filter panel.
	WithStreets bool
}

// GetMemberDirectoryResult carries the filtered, sorted entries.
type GetMemberDirectoryResult struct {
	Entries  []domainMember.DirectoryEntry
	Streets  []string
	Criteria filter.Criteria
	Sort     listutil.SortParams
	Seq      int64
}

// GetMemberDirectoryDeps holds dependencies for GetMemberDirectory.
type GetMemberDirectoryDeps struct {
	DirectoryStore DirectoryStore
}

// QueryGetMemberDirectory runs one directory query.
// PRE: Sort was produced by listutil.ParseSortParams over member.SortColumns
// POST: entries satisfy every predicate of Criteria; Seq is echoed
func QueryGetMemberDirectory(ctx context.Context, query GetMemberDirectoryQuery, deps GetMemberDirectoryDeps) (GetMemberDirectoryResult, error) {
	result := GetMemberDirectoryResult{Criteria: query.Criteria, Sort: query.Sort, Seq: query.Seq}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		entries, err := deps.DirectoryStore.ListDirectory(gctx, member.ListFilter{
			Predicates: query.Criteria.Predicates(),
			Sort:       query.Sort.Sort,
			Dir:        query.Sort.Dir,
		})
		result.Entries = entries
		return err
	})
	if query.WithStreets {
		g.Go(func() error {
			streets, err := deps.DirectoryStore.Streets(gctx)
			result.Streets = streets
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return GetMemberDirectoryResult{}, err
	}
	if result.Entries == nil {
		result.Entries = []domainMember.DirectoryEntry{}
	}
	return result, nil
}
