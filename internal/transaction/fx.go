package transaction

import (
	"github.com/smallbiznis/matrixgw/internal/transaction/domain"
	"github.com/smallbiznis/matrixgw/internal/transaction/service"
	"github.com/smallbiznis/matrixgw/pkg/db"
	"go.uber.org/fx"
)

var Module = fx.Module("transaction.gate",
	fx.Provide(service.NewGate),
	fx.Invoke(migrate),
)

// migrate creates the gateway's own table on the store connection.
// Homeserver tables are foreign schema and never migrated from here.
func migrate(store db.Store) error {
	return store.AutoMigrate(&domain.Record{})
}
