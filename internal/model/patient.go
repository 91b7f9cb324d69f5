package model

// PatientContact is what notifications need to reach a patient.
type PatientContact struct {
	ID    int64  `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email"`
}
