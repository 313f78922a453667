package entity

// Pharmacy is one tenant of the dashboard.
type Pharmacy struct {
	ID   string `db:"id"`
	Name string `db:"name"`
}
