package users

import "time"

// User maps an external chat-platform identity to an internal surrogate id.
// Rows are created lazily on first interaction and never deleted; only the
// display fields may change afterwards.
type User struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ExternalID int64     `gorm:"column:external_id;uniqueIndex;not null"`
	Username   string    `gorm:"column:username;size:190;not null;default:''"`
	FirstName  string    `gorm:"column:first_name;size:190;not null;default:''"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}
