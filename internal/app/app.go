// Package app wires stores, messaging and the order services from a Config.
package app

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-marketplace-orders/internal/config"
	"github.com/ariefcatur/go-marketplace-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-marketplace-orders/internal/kafka"
	"github.com/ariefcatur/go-marketplace-orders/internal/memstore"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
	"go.uber.org/zap"
)

// Stores groups the persistence ports behind one driver.
type Stores struct {
	Inventory inventory.Store
	Orders    orders.Store
	Catalog   interface {
		orders.Catalog
		orders.SellerDirectory
		ListProducts(ctx context.Context) ([]orders.Product, error)
	}
	close func()
}

func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStores connects the configured driver. The postgres driver applies the schema on
// start.
func OpenStores(ctx context.Context, cfg config.Config, log *zap.Logger) (*Stores, error) {
	switch cfg.StoreDriver {
	case "memory":
		log.Warn("using in-memory store; data is lost on exit")
		m := memstore.New()
		return &Stores{Inventory: m, Orders: m, Catalog: m}, nil
	case "postgres", "":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("db migrate: %w", err)
		}
		return &Stores{
			Inventory: &postgres.InventoryStore{DB: db},
			Orders:    &postgres.OrderStore{DB: db},
			Catalog:   &postgres.Catalog{DB: db},
			close:     db.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}

// Services are the order-core components sharing one set of Deps.
type Services struct {
	Ledger      *inventory.Ledger
	Processor   *orders.Processor
	Lifecycle   *orders.Lifecycle
	Progression *orders.Progression
	Tracker     *orders.Tracker
}

// NewServices builds the order core. sink may be nil, in which case events are dropped
// and sellers are not notified.
func NewServices(cfg config.Config, st *Stores, sink *kafkax.Sink, log *zap.Logger) *Services {
	ledger := inventory.NewLedger(st.Inventory, log)
	d := orders.Deps{
		Store:   st.Orders,
		Ledger:  ledger,
		Catalog: st.Catalog,
		Sellers: st.Catalog,
		Log:     log,
	}
	if sink != nil {
		d.Events = sink
		d.Notifier = sink
	}
	return &Services{
		Ledger: ledger,
		Processor: orders.NewProcessor(d, orders.PlacementConfig{
			DefaultCarrier:   cfg.DefaultCarrier,
			DeliveryEstimate: cfg.DeliveryEstimate,
		}),
		Lifecycle: orders.NewLifecycle(d),
		Progression: orders.NewProgression(d, orders.ProgressionPolicy{
			MinWait:   cfg.SweepMinWait,
			MaxWait:   cfg.SweepMaxWait,
			BatchSize: cfg.SweepBatchSize,
		}),
		Tracker: orders.NewTracker(d),
	}
}
