package challenges

import "time"

// Challenge is an immutable content unit. Title, body, and tags never change
// after creation; (title, body) is the deduplication key the generator must
// consult before inserting.
type Challenge struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Title     string    `gorm:"column:title;size:300;not null;uniqueIndex:idx_challenges_title_body,priority:1"`
	Body      string    `gorm:"column:body;size:1000;not null;uniqueIndex:idx_challenges_title_body,priority:2"`
	Tags      string    `gorm:"column:tags;size:190;not null;default:''"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Challenge) TableName() string {
	return "challenges"
}

// TagList splits the stored comma-separated tags, dropping blanks.
func (c Challenge) TagList() []string {
	if c.Tags == "" {
		return nil
	}
	var tags []string
	for _, tag := range splitCSV(c.Tags) {
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
