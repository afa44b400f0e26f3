package cursor

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/nimburion/docstore/pkg/document"
	"github.com/nimburion/docstore/pkg/observability/tracing"
	"github.com/nimburion/docstore/pkg/query"
)

// Join attaches to each local record the first foreign record whose
// ForeignField equals the local record's LocalField. The match is stored
// under As, or under LocalField when As is empty. A dotted alias is a path
// into the local record. Locals without a match are kept unchanged.
type Join struct {
	Cursor       *Cursor
	LocalField   string
	ForeignField string
	As           string
}

func (j Join) alias() string {
	if j.As != "" {
		return j.As
	}
	return j.LocalField
}

func (j Join) validate() error {
	if j.Cursor == nil {
		return fmt.Errorf("%w: nil foreign cursor", ErrInvalidJoin)
	}
	if j.LocalField == "" || j.ForeignField == "" {
		return fmt.Errorf("%w: local and foreign fields are required", ErrInvalidJoin)
	}
	return nil
}

// joinResult maps local record positions to the foreign view to attach.
type joinResult map[int]document.Record

func (c *Cursor) resolveJoins(ctx context.Context, locals []document.Record, depth int) error {
	for _, j := range c.joins {
		if err := j.validate(); err != nil {
			return err
		}
	}

	ctx, span := tracing.StartQuerySpan(ctx, tracing.SpanOperationQueryJoin,
		tracing.WithCollection(c.name),
		tracing.WithJoinCount(len(c.joins)),
		tracing.WithDepth(depth),
	)
	defer span.End()

	results := make([]joinResult, len(c.joins))
	errs := make([]error, len(c.joins))

	run := func(i int) {
		defer func() {
			if r := recover(); r != nil {
				errs[i] = fmt.Errorf("join panicked: %v", r)
			}
		}()
		results[i], errs[i] = resolveJoin(ctx, c.joins[i], locals, depth)
	}

	if depth == 0 && len(c.joins) > 1 {
		if err := c.fanOut(len(c.joins), run); err != nil {
			tracing.RecordError(span, err)
			return err
		}
	} else {
		for i := range c.joins {
			run(i)
		}
	}

	for i, err := range errs {
		if err != nil {
			err = fmt.Errorf("join %q: %w", c.joins[i].alias(), err)
			tracing.RecordError(span, err)
			return err
		}
	}

	for i, j := range c.joins {
		alias := j.alias()
		for pos, foreign := range results[i] {
			document.Set(locals[pos], alias, foreign)
		}
	}
	tracing.RecordSuccess(span)
	return nil
}

// fanOut runs n tasks on the cursor's pool, or on a temporary pool sized to
// n. A task the pool refuses runs on the calling goroutine.
func (c *Cursor) fanOut(n int, task func(int)) error {
	pool := c.pool
	if pool == nil {
		tmp, err := ants.NewPool(n, ants.WithNonblocking(true))
		if err != nil {
			return fmt.Errorf("create join pool: %w", err)
		}
		defer tmp.Release()
		pool = tmp
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			task(i)
		})
		if err != nil {
			wg.Done()
			task(i)
		}
	}
	wg.Wait()
	return nil
}

func resolveJoin(ctx context.Context, j Join, locals []document.Record, depth int) (joinResult, error) {
	seen := make(map[string]struct{})
	values := make([]any, 0, len(locals))
	for _, local := range locals {
		v, ok := document.Lookup(local, j.LocalField)
		if !ok {
			continue
		}
		key, ok := document.Key(v)
		if !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		values = append(values, v)
	}
	if len(values) == 0 {
		return joinResult{}, nil
	}

	foreign := j.Cursor.Clone()
	foreign.query = foreign.query.And(query.Field(j.ForeignField, query.In(values...)))
	if err := foreign.execute(ctx, depth+1); err != nil {
		return nil, err
	}

	byKey := make(map[string]int, len(foreign.raw))
	for i, r := range foreign.raw {
		v, ok := document.Lookup(r, j.ForeignField)
		if !ok {
			continue
		}
		key, ok := document.Key(v)
		if !ok {
			continue
		}
		if _, taken := byKey[key]; !taken {
			byKey[key] = i
		}
	}

	out := make(joinResult)
	for pos, local := range locals {
		v, ok := document.Lookup(local, j.LocalField)
		if !ok {
			continue
		}
		key, ok := document.Key(v)
		if !ok {
			continue
		}
		if i, found := byKey[key]; found {
			out[pos] = document.Clone(foreign.results[i])
		}
	}
	return out, nil
}
