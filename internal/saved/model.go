package saved

import "time"

// Entry is a user's saved challenge with an optional free-text note. At most
// one row exists per (user, challenge) pair, enforced by the composite
// primary key.
type Entry struct {
	UserID      int64     `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	ChallengeID int64     `gorm:"column:challenge_id;primaryKey;autoIncrement:false"`
	Note        string    `gorm:"column:note;size:500;not null;default:''"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;index:idx_saved_created_at"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "saved"
}
