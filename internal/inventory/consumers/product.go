package consumers

import (
	"context"

	"github.com/medlan/medlan-backend/internal/inventory/domain"
	"github.com/medlan/medlan-backend/pkg/logger"
	"github.com/medlan/medlan-backend/pkg/messaging"
)

const productQueue = "inventory-service.catalog-events"

// ProductCache stores catalog data the inventory services read thresholds
// and prices from.
type ProductCache interface {
	UpsertProduct(ctx context.Context, p *domain.ProductInfo) error
}

// ProductEventConsumer keeps the product cache in step with the catalog
type ProductEventConsumer struct {
	consumer *messaging.Consumer
	cache    ProductCache
	logger   *logger.Logger
}

// NewProductEventConsumer creates a new product event consumer
func NewProductEventConsumer(rmq *messaging.RabbitMQ, cache ProductCache, log *logger.Logger) (*ProductEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, productQueue, log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeCatalogEvents, "catalog.product.#"); err != nil {
		return nil, err
	}

	c := NewProductHandler(cache, log)
	c.consumer = consumer
	consumer.RegisterHandler(messaging.EventProductUpserted, c.HandleProductUpserted)

	return c, nil
}

// NewProductHandler builds the consumer without a broker connection.
func NewProductHandler(cache ProductCache, log *logger.Logger) *ProductEventConsumer {
	return &ProductEventConsumer{
		cache:  cache,
		logger: log.WithComponent("product_consumer"),
	}
}

// Start starts consuming messages
func (c *ProductEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

// HandleProductUpserted writes a catalog product into the cache. Events
// without a product id cannot be applied and are dropped.
func (c *ProductEventConsumer) HandleProductUpserted(ctx context.Context, event *messaging.Event) error {
	var data messaging.ProductUpsertedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	if data.ProductID == "" {
		c.logger.Warn().Str("event_id", event.ID).Msg("product event without product_id dropped")
		return nil
	}

	c.logger.Info().
		Str("product_id", data.ProductID).
		Bool("discontinued", data.Discontinued).
		Msg("received product upserted event")

	return c.cache.UpsertProduct(ctx, &domain.ProductInfo{
		ProductID:    data.ProductID,
		ProductCode:  data.ProductCode,
		Name:         data.Name,
		ReorderLevel: data.ReorderLevel,
		MinimumStock: data.MinimumStock,
		MaximumStock: data.MaximumStock,
		SellingPrice: data.SellingPrice,
		CostPrice:    data.CostPrice,
		Discontinued: data.Discontinued,
	})
}
