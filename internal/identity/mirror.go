package identity

import (
	"encoding/json"
	"time"

	"github.com/thunder45/service-translate/pkg/logging"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// adminIdentityEntity is the GORM row shape for the queryable mirror: a
// plain struct with gorm tags, a TableName override, and JSON-encoded
// compound fields.
type adminIdentityEntity struct {
	ID            string `gorm:"primaryKey;type:char(36);not null"`
	DisplayName   string `gorm:"column:display_name;uniqueIndex;type:varchar(255);not null"`
	Email         string `gorm:"column:email;uniqueIndex;type:varchar(255);not null"`
	OwnedSessions string `gorm:"column:owned_sessions;type:text"`
	CreatedAt     time.Time
	LastSeenAt    time.Time
}

func (adminIdentityEntity) TableName() string { return "admin_identities" }

func entityFromRecord(rec *AdminIdentity) adminIdentityEntity {
	sessions, _ := json.Marshal(rec.OwnedSessions)
	return adminIdentityEntity{
		ID:            rec.ID,
		DisplayName:   rec.DisplayName,
		Email:         rec.Email,
		OwnedSessions: string(sessions),
		CreatedAt:     rec.CreatedAt,
		LastSeenAt:    rec.LastSeenAt,
	}
}

// sqliteMirror is a queryable, best-effort mirror of the canonical
// file-based store — it never gates a Store operation's success. The
// spec's invariants are enforced entirely by the file store; this exists
// so `/health`-adjacent tooling and admin search can run a SQL query
// instead of scanning the identity directory.
type sqliteMirror struct {
	db     *gorm.DB
	logger *logging.Logger
}

// OpenMirror opens (and migrates) the SQLite mirror database at path.
func OpenMirror(path string, logger *logging.Logger) (*sqliteMirror, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&adminIdentityEntity{}); err != nil {
		return nil, err
	}
	return &sqliteMirror{db: db, logger: logger}, nil
}

func (m *sqliteMirror) upsert(rec *AdminIdentity) {
	entity := entityFromRecord(rec)
	if err := m.db.Save(&entity).Error; err != nil {
		m.logger.Warnf("admin identity mirror upsert failed for %s: %v", rec.ID, err)
	}
}

func (m *sqliteMirror) delete(adminID string) {
	if err := m.db.Delete(&adminIdentityEntity{}, "id = ?", adminID).Error; err != nil {
		m.logger.Warnf("admin identity mirror delete failed for %s: %v", adminID, err)
	}
}
