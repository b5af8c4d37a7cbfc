package entities

import "strings"

// Person is a registered employee or contractor.
type Person struct {
	EmployeeID string `gorm:"primaryKey;size:50" json:"employee_id" yaml:"employee_id"`
	Name       string `gorm:"size:100;not null" json:"name" yaml:"name"`
	Department string `gorm:"size:100;default:''" json:"department" yaml:"department"`
	Position   string `gorm:"size:100;default:''" json:"position" yaml:"position"`
	Phone      string `gorm:"size:50;default:''" json:"phone" yaml:"phone"`
}

// TableName returns the table name for GORM.
func (Person) TableName() string {
	return "catalog_persons"
}

// Describe renders the descriptive snapshot stored on watch rules.
func (p *Person) Describe() string {
	return joinNonEmpty(p.Department, p.Position)
}

// Vehicle is a registered vehicle.
type Vehicle struct {
	PlateNumber string `gorm:"primaryKey;size:20" json:"plate_number" yaml:"plate_number"`
	VehicleType string `gorm:"size:50;default:''" json:"vehicle_type" yaml:"vehicle_type"`
	Color       string `gorm:"size:30;default:''" json:"color" yaml:"color"`
	Owner       string `gorm:"size:100;default:''" json:"owner" yaml:"owner"`
	Department  string `gorm:"size:100;default:''" json:"department" yaml:"department"`
}

// TableName returns the table name for GORM.
func (Vehicle) TableName() string {
	return "catalog_vehicles"
}

// Describe renders the descriptive snapshot stored on watch rules.
func (v *Vehicle) Describe() string {
	return joinNonEmpty(v.VehicleType, v.Color, v.Owner, v.Department)
}

func joinNonEmpty(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, " · ")
}
