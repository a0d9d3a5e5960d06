package storage

import "time"

// UnitState is the lifecycle state of a stored unit.
type UnitState string

const (
	StateReady    UnitState = "ready"
	StateReserved UnitState = "reserved"
	StateBuried   UnitState = "buried"
)

// UnitRecord is a row of the units table.
type UnitRecord struct {
	ID         uint64     `gorm:"primaryKey;autoIncrement"`
	Tube       string     `gorm:"size:200;not null;index:idx_units_claim,priority:1"`
	State      UnitState  `gorm:"size:16;not null;index:idx_units_claim,priority:2"`
	Priority   uint32     `gorm:"not null;index:idx_units_claim,priority:3"`
	Body       []byte     `gorm:"not null"`
	TTRSeconds int        `gorm:"column:ttr;not null"`
	ReadyAt    time.Time  `gorm:"not null"`
	ReservedBy string     `gorm:"size:64"`
	Deadline   *time.Time `gorm:"index"`
	Reserves   int        `gorm:"not null;default:0"`
	BuriedAt   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName implements gorm's tabler.
func (UnitRecord) TableName() string { return "units" }

// TTR returns the unit's time-to-run.
func (r *UnitRecord) TTR() time.Duration {
	return time.Duration(r.TTRSeconds) * time.Second
}

// TubeStats counts a tube's units by state.
type TubeStats struct {
	Tube     string
	Ready    int64
	Delayed  int64
	Reserved int64
	Buried   int64
}
