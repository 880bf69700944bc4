package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"rms-connector-service/internal/clients"
	"rms-connector-service/internal/errs"
	"rms-connector-service/internal/models"
	"rms-connector-service/internal/repository"
	"rms-connector-service/internal/retry"
)

// PollerDefaults are the cycle parameters used when PollOptions leaves a
// field unset.
type PollerDefaults struct {
	LookbackMinutes   int
	BatchSize         int
	MaxPages          int
	FinancialStatuses []models.FinancialStatus
}

// OrderPoller drives one poll cycle: compute the time window, page through
// the storefront, then sync every returned order into RMS. A cycle never
// returns an error; failures surface through the report.
type OrderPoller struct {
	gateway   clients.StorefrontGateway
	orders    repository.OrderStore
	resolver  *CustomerResolver
	converter *OrderConverter
	writer    *OrderWriter
	fabric    *retry.Fabric
	defaults  PollerDefaults
	logger    *log.Entry
}

// NewOrderPoller wires the cycle driver.
func NewOrderPoller(
	gateway clients.StorefrontGateway,
	orders repository.OrderStore,
	resolver *CustomerResolver,
	converter *OrderConverter,
	writer *OrderWriter,
	fabric *retry.Fabric,
	defaults PollerDefaults,
) *OrderPoller {
	return &OrderPoller{
		gateway:   gateway,
		orders:    orders,
		resolver:  resolver,
		converter: converter,
		writer:    writer,
		fabric:    fabric,
		defaults:  defaults,
		logger:    log.WithField("component", "order_poller"),
	}
}

// Poll runs one cycle and returns its report plus the cycle's aggregator.
func (p *OrderPoller) Poll(ctx context.Context, opts models.PollOptions) (*models.PollReport, *errs.Aggregator) {
	start := time.Now()
	agg := errs.NewAggregator()
	opts = p.applyDefaults(opts)

	cycleID := uuid.NewString()
	logger := p.logger.WithField("cycleId", cycleID)
	logger.WithFields(log.Fields{
		"lookbackMinutes": opts.LookbackMinutes,
		"batchSize":       opts.BatchSize,
		"maxPages":        opts.MaxPages,
		"dryRun":          opts.DryRun,
	}).Info("Poll cycle started")

	report := &models.PollReport{
		Status:    models.ReportSuccess,
		Timestamp: start.UTC(),
	}

	if opts.BatchSize <= 0 {
		report.Message = "batch size is zero, nothing to poll"
		report.DurationSeconds = roundSeconds(time.Since(start))
		return report, agg
	}

	orders, fetchErr := p.fetchOrders(ctx, opts)
	report.Statistics.TotalPolled = len(orders)
	if fetchErr != nil {
		agg.AddError("fetch recent orders", fetchErr)
		report.Status = models.ReportError
		report.Error = fetchErr.Error()
		report.Message = "storefront fetch failed"
		report.DurationSeconds = roundSeconds(time.Since(start))
		return report, agg
	}

	refs, orders := p.referenceNumbers(orders, agg)

	existence, err := p.checkExistence(ctx, refs)
	if err != nil {
		agg.AddError("batch check order existence", err)
		report.Status = models.ReportError
		report.Error = err.Error()
		report.Message = "RMS existence check failed"
		report.DurationSeconds = roundSeconds(time.Since(start))
		return report, agg
	}
	for _, exists := range existence {
		if exists {
			report.Statistics.AlreadySynced++
		}
	}

	if opts.DryRun {
		report.Status = models.ReportDryRun
		report.NewOrderIDs = refs
		report.Message = fmt.Sprintf("dry run: %d orders polled, %d already in RMS, no writes",
			len(orders), report.Statistics.AlreadySynced)
		report.DurationSeconds = roundSeconds(time.Since(start))
		return report, agg
	}

	skipped := p.syncOrders(ctx, orders, refs, &report.Statistics, agg)
	if skipped > 0 {
		report.Status = models.ReportError
		report.Error = "storefront circuit opened mid-cycle"
		report.Message = fmt.Sprintf("circuit opened, %d orders skipped", skipped)
	} else {
		report.Message = fmt.Sprintf("%d orders polled, %d created, %d updated, %d errors",
			report.Statistics.TotalPolled, report.Statistics.NewlySynced,
			report.Statistics.Updated, report.Statistics.SyncErrors)
	}

	report.Statistics.SuccessRate = successRate(report.Statistics)
	report.DurationSeconds = roundSeconds(time.Since(start))
	report.SyncDetails = map[string]interface{}{
		"cycleId":      cycleID,
		"errorSummary": agg.Summary(),
	}
	return report, agg
}

// applyDefaults fills unset cycle parameters from configuration and clamps
// the batch size to the storefront page limit.
func (p *OrderPoller) applyDefaults(opts models.PollOptions) models.PollOptions {
	if opts.LookbackMinutes == 0 {
		opts.LookbackMinutes = p.defaults.LookbackMinutes
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = p.defaults.BatchSize
	}
	if opts.BatchSize > clients.MaxPageSize {
		opts.BatchSize = clients.MaxPageSize
	}
	if opts.MaxPages == 0 {
		opts.MaxPages = p.defaults.MaxPages
	}
	if len(opts.FinancialStatuses) == 0 {
		opts.FinancialStatuses = p.defaults.FinancialStatuses
	}
	return opts
}

// fetchOrders pages through the storefront under the storefront executor
// until pagination exhausts or MaxPages is reached.
func (p *OrderPoller) fetchOrders(ctx context.Context, opts models.PollOptions) ([]models.StorefrontOrder, error) {
	filter := clients.OrderFilter{
		UpdatedAfter:        time.Now().UTC().Add(-time.Duration(opts.LookbackMinutes) * time.Minute),
		FinancialStatuses:   opts.FinancialStatuses,
		FulfillmentStatuses: opts.FulfillmentStatuses,
		IncludeTestOrders:   opts.IncludeTestOrders,
	}

	var orders []models.StorefrontOrder
	cursor := ""
	for pages := 0; pages < opts.MaxPages; pages++ {
		var page *clients.OrdersPage
		err := p.fabric.Storefront.Execute(ctx, "fetch recent orders", func(ctx context.Context) error {
			var err error
			page, err = p.gateway.FetchRecentOrders(ctx, filter, opts.BatchSize, cursor)
			return err
		})
		if err != nil {
			return orders, err
		}
		orders = append(orders, page.Orders...)
		if !page.HasNext || len(page.Orders) == 0 {
			break
		}
		cursor = page.EndCursor
	}
	return orders, nil
}

// referenceNumbers derives the reference number per order. Orders without a
// usable id are dropped with a warning.
func (p *OrderPoller) referenceNumbers(orders []models.StorefrontOrder, agg *errs.Aggregator) ([]string, []models.StorefrontOrder) {
	refs := make([]string, 0, len(orders))
	kept := make([]models.StorefrontOrder, 0, len(orders))
	for i := range orders {
		ref, err := orders[i].ReferenceNumber()
		if err != nil {
			agg.AddWarning("derive reference number", errs.Validation("%v", err))
			continue
		}
		refs = append(refs, ref)
		kept = append(kept, orders[i])
	}
	return refs, kept
}

// checkExistence runs the batch existence query under the RMS executor.
func (p *OrderPoller) checkExistence(ctx context.Context, refs []string) (map[string]bool, error) {
	var existence map[string]bool
	err := p.fabric.Rms.Execute(ctx, "batch check order existence", func(ctx context.Context) error {
		var err error
		existence, err = p.orders.BatchCheckOrderExistence(ctx, refs)
		return err
	})
	return existence, err
}

// syncOrders processes every polled order sequentially in page order. It
// returns the count of orders skipped because the storefront breaker opened.
func (p *OrderPoller) syncOrders(ctx context.Context, orders []models.StorefrontOrder, refs []string, stats *models.PollStatistics, agg *errs.Aggregator) int {
	for i := range orders {
		if p.fabric.Storefront.BreakerOpen() {
			skipped := len(orders) - i
			p.logger.WithField("skipped", skipped).Warn("Storefront circuit opened mid-cycle, aborting")
			return skipped
		}

		agg.IncrementProcessed()
		result, err := p.syncOne(ctx, &orders[i], refs[i], agg)
		if err != nil {
			stats.SyncErrors++
			agg.Add("sync order "+refs[i], err)
			p.logger.WithFields(log.Fields{
				"reference": refs[i],
				"kind":      errs.KindOf(err),
			}).WithError(err).Error("Order sync failed")
			continue
		}
		if result.Action == UpsertCreated {
			stats.NewlySynced++
		} else {
			stats.Updated++
		}
	}
	return 0
}

// syncOne resolves, converts and upserts a single order. The upsert runs
// under the sync executor so a transient write failure retries the whole
// transaction.
func (p *OrderPoller) syncOne(ctx context.Context, order *models.StorefrontOrder, ref string, agg *errs.Aggregator) (*UpsertResult, error) {
	customerID, err := p.resolver.Resolve(ctx, order)
	if err != nil {
		return nil, err
	}

	converted, err := p.converter.Convert(ctx, order, customerID)
	if err != nil {
		return nil, err
	}
	for _, warning := range converted.Warnings {
		agg.AddWarning("convert order "+ref, warning)
		p.logger.WithField("reference", ref).Warn(warning.Error())
	}

	var existing *models.Order
	err = p.fabric.Rms.Execute(ctx, "find order by reference", func(ctx context.Context) error {
		var err error
		existing, err = p.orders.FindOrderByReference(ctx, ref)
		return err
	})
	if err != nil {
		return nil, err
	}

	var result *UpsertResult
	err = p.fabric.Sync.Execute(ctx, "upsert order", func(ctx context.Context) error {
		var err error
		result, err = p.writer.Upsert(ctx, existing, converted.Header, converted.Entries)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// successRate computes the percentage of attempted writes that landed,
// rounded to two decimals. No attempts yields zero.
func successRate(stats models.PollStatistics) float64 {
	attempted := stats.NewlySynced + stats.Updated + stats.SyncErrors
	if attempted == 0 {
		return 0
	}
	rate := float64(stats.NewlySynced+stats.Updated) / float64(attempted) * 100
	return math.Round(rate*100) / 100
}

// roundSeconds converts a duration to seconds with two decimals.
func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
