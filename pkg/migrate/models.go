package migrate

import (
	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
	"gorm.io/gorm"
)

// Models lists every table the escrow service owns, in dependency order.
func Models() []any {
	return []any{
		&models.Product{},
		&models.PaymentSession{},
		&models.Transaction{},
		&models.InvoiceSequence{},
		&models.Invoice{},
		&models.CartItem{},
		&models.LedgerEvent{},
		&models.OutboxEvent{},
		&models.OutboxDLQ{},
	}
}

// AutoMigrateModels creates the schema from the gorm models. Used for sqlite
// deployments and tests where the Postgres SQL files do not apply.
func AutoMigrateModels(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
