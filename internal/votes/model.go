package votes

import "time"

// Vote is the single row allowed per (user, challenge) pair. The composite
// primary key is the invariant; Cast upserts against it rather than
// inserting a second row.
type Vote struct {
	UserID      int64     `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	ChallengeID int64     `gorm:"column:challenge_id;primaryKey;autoIncrement:false"`
	Value       int       `gorm:"column:value;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Vote) TableName() string {
	return "votes"
}
