package outbox

import (
	"errors"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/angelmondragon/relivv-escrow/pkg/db/models"
)

// dlqMessageLimit bounds the stored error text in bytes.
const dlqMessageLimit = 1024

// DLQRepository records outbox rows the publisher gave up on.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

// InsertTx stores entry inside the publisher's claim transaction so the
// dead letter and the terminal mark commit together.
func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("dead letter insert requires a transaction")
	}
	if !entry.ErrorReason.IsValid() {
		return errors.New("dead letter insert requires a known reason")
	}
	if entry.ErrorMessage != nil {
		clipped := clipMessage(*entry.ErrorMessage, dlqMessageLimit)
		entry.ErrorMessage = &clipped
	}
	return tx.Create(&entry).Error
}

// clipMessage cuts s to at most limit bytes without splitting a rune.
func clipMessage(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
