package models

// Room is a physical classroom. A nil capacity means uncapped.
type Room struct {
	ID           int64  `db:"id" json:"id"`
	Name         string `db:"name" json:"name"`
	SubsidiaryID int64  `db:"subsidiary_id" json:"subsidiary_id"`
	Capacity     *int   `db:"capacity" json:"capacity,omitempty"`
	IsActive     bool   `db:"is_active" json:"is_active"`
}

// CapacityOrZero returns the room capacity treating uncapped rooms as zero.
func (r Room) CapacityOrZero() int {
	if r.Capacity == nil {
		return 0
	}
	return *r.Capacity
}
