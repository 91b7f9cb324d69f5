package model

type Doctor struct {
	ID              int64   `db:"id" json:"id"`
	Name            string  `db:"name" json:"name"`
	Email           string  `db:"email" json:"email"`
	Specialty       string  `db:"specialty" json:"specialty"`
	HospitalName    string  `db:"hospital_name" json:"hospital_name"`
	HospitalAddress string  `db:"hospital_address" json:"hospital_address"`
	ConsultationFee float64 `db:"consultation_fee" json:"consultation_fee"`
	ProfileImage    string  `db:"profile_image" json:"profile_image"`
}
