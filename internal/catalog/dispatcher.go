package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

var tracer = otel.Tracer("mercadoclaw/catalog")

// CandidateFinder resolves a mention to candidates (see Resolver).
type CandidateFinder interface {
	Resolve(ctx context.Context, mention string) []Candidate
}

// Ranker orders candidates for a mention (see Scorer).
type Ranker interface {
	Rank(mention string, candidates []Candidate) []ScoredCandidate
}

// AvailabilityFetcher returns available records for one identifier (see AvailabilityClient).
type AvailabilityFetcher interface {
	Fetch(ctx context.Context, identifier string) ([]AvailabilityRecord, error)
}

// DispatcherOptions bounds the work done per batch.
type DispatcherOptions struct {
	Workers     int // concurrent mentions across all batches (default 5)
	MaxAttempts int // ranked candidates tried per mention (default 3)
}

// Dispatcher resolves batches of mentions. The worker budget is shared by
// every Resolve call on the same Dispatcher.
type Dispatcher struct {
	finder      CandidateFinder
	ranker      Ranker
	fetcher     AvailabilityFetcher
	sem         *semaphore.Weighted
	maxAttempts int
}

// NewDispatcher wires the three pipeline stages together.
func NewDispatcher(finder CandidateFinder, ranker Ranker, fetcher AvailabilityFetcher, opts DispatcherOptions) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 5
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	return &Dispatcher{
		finder:      finder,
		ranker:      ranker,
		fetcher:     fetcher,
		sem:         semaphore.NewWeighted(int64(opts.Workers)),
		maxAttempts: opts.MaxAttempts,
	}
}

// Resolve runs the pipeline for every mention and blocks until all are done.
// results[i] always corresponds to mentions[i]. A failure in one mention
// never affects the others.
func (d *Dispatcher) Resolve(ctx context.Context, mentions []string) []ResolvedProduct {
	batchID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "catalog.Dispatcher.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("batch_id", batchID), attribute.Int("mentions", len(mentions)))

	results := make([]ResolvedProduct, len(mentions))
	var g errgroup.Group
	for i, mention := range mentions {
		g.Go(func() error {
			if err := d.sem.Acquire(ctx, 1); err != nil {
				results[i] = ResolvedProduct{Mention: mention, FailureReason: FailureCancelled}
				return nil
			}
			defer d.sem.Release(1)
			results[i] = d.resolveSafe(ctx, mention)
			return nil
		})
	}
	_ = g.Wait()

	found := 0
	for _, r := range results {
		if r.OK() {
			found++
		}
	}
	span.SetAttributes(attribute.Int("found", found))
	slog.Info("catalog.batch_resolved", "batch", batchID, "mentions", len(mentions), "found", found)
	return results
}

func (d *Dispatcher) resolveSafe(ctx context.Context, mention string) (res ResolvedProduct) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("catalog.mention_panic", "mention", mention, "panic", r, "stack", string(debug.Stack()))
			res = ResolvedProduct{Mention: mention, FailureReason: FailureInternal}
		}
	}()
	return d.ResolveOne(ctx, mention)
}

// ResolveOne runs the pipeline for a single mention: candidates, ranking,
// then availability over the top ranked candidates until one is in stock.
func (d *Dispatcher) ResolveOne(ctx context.Context, mention string) ResolvedProduct {
	ctx, span := tracer.Start(ctx, "catalog.Dispatcher.ResolveOne")
	defer span.End()
	span.SetAttributes(attribute.String("mention", mention))

	cands := d.finder.Resolve(ctx, mention)
	span.SetAttributes(attribute.Int("candidates", len(cands)))
	if len(cands) == 0 {
		span.SetAttributes(attribute.String("outcome", FailureNotFound))
		return ResolvedProduct{Mention: mention, FailureReason: FailureNotFound}
	}

	ranked := d.ranker.Rank(mention, cands)
	attempts := 0
	for _, sc := range ranked {
		if attempts == d.maxAttempts {
			break
		}
		if ctx.Err() != nil {
			span.SetStatus(codes.Error, ctx.Err().Error())
			span.SetAttributes(attribute.Int("attempts", attempts), attribute.String("outcome", FailureCancelled))
			return ResolvedProduct{Mention: mention, FailureReason: FailureCancelled}
		}
		attempts++

		records, err := d.fetcher.Fetch(ctx, sc.Identifier)
		if err != nil {
			slog.Warn("catalog.lookup_failed", "mention", mention, "identifier", sc.Identifier, "error", err)
			continue
		}
		if len(records) == 0 {
			continue
		}

		rec := records[0]
		name := rec.DisplayName
		if name == "" {
			name = sc.DisplayName
		}
		span.SetAttributes(attribute.Int("attempts", attempts), attribute.String("outcome", "found"))
		return ResolvedProduct{
			Mention:     mention,
			DisplayName: name,
			Identifier:  sc.Identifier,
			PriceMinor:  rec.PriceMinor,
			HasPrice:    rec.HasPrice,
		}
	}

	span.SetAttributes(attribute.Int("attempts", attempts), attribute.String("outcome", FailureOutOfStock))
	return ResolvedProduct{Mention: mention, FailureReason: FailureOutOfStock}
}

// String implements fmt.Stringer for log lines.
func (r ResolvedProduct) String() string {
	if !r.OK() {
		return fmt.Sprintf("%s: %s", r.Mention, r.FailureReason)
	}
	return fmt.Sprintf("%s: %s %s", r.Mention, r.DisplayName, r.PriceText())
}

// PriceText renders the price, or "preço indisponível" when none was quoted.
func (r ResolvedProduct) PriceText() string {
	if !r.HasPrice {
		return noPriceText
	}
	return FormatPrice(r.PriceMinor)
}
