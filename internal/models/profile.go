package models

import "time"

// StaffProfile is the role-specific row for STAFF identities.
type StaffProfile struct {
	UserID     string     `db:"user_id" json:"user_id"`
	FirstName  string     `db:"first_name" json:"first_name"`
	LastName   string     `db:"last_name" json:"last_name"`
	Email      string     `db:"email" json:"email"`
	Department *string    `db:"department" json:"department,omitempty"`
	Salary     *float64   `db:"salary" json:"salary,omitempty"`
	HireDate   *time.Time `db:"hire_date" json:"hire_date,omitempty"`
	Active     bool       `db:"active" json:"active"`
}

// StudentProfile is the role-specific row for STUDENT identities.
type StudentProfile struct {
	UserID      string    `db:"user_id" json:"user_id"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	Email       string    `db:"email" json:"email"`
	DateOfBirth time.Time `db:"date_of_birth" json:"date_of_birth"`
	Age         *int      `db:"age" json:"age,omitempty"`
	GPA         *float64  `db:"gpa" json:"gpa,omitempty"`
	Active      bool      `db:"active" json:"active"`
}

// AdminDetails carries the extra fields required for an ADMIN identity.
type AdminDetails struct {
	Email string `json:"email" validate:"required,email"`
}

// StaffDetails carries the extra fields required for a STAFF identity.
type StaffDetails struct {
	FirstName  string   `json:"first_name" validate:"required"`
	LastName   string   `json:"last_name" validate:"required"`
	Email      string   `json:"email" validate:"required,email"`
	Department string   `json:"department"`
	Salary     *float64 `json:"salary,omitempty" validate:"omitempty,gte=0"`
	HireDate   string   `json:"hire_date" validate:"required,datetime=2006-01-02"`
}

// StudentDetails carries the extra fields required for a STUDENT identity.
type StudentDetails struct {
	FirstName   string   `json:"first_name" validate:"required"`
	LastName    string   `json:"last_name" validate:"required"`
	Email       string   `json:"email" validate:"required,email"`
	DateOfBirth string   `json:"date_of_birth" validate:"required,datetime=2006-01-02"`
	Age         int      `json:"age" validate:"required,gte=5,lte=100"`
	GPA         *float64 `json:"gpa,omitempty" validate:"omitempty,gte=0,lte=4"`
}

// RoleDetails is a tagged union of the per-role field sets. Exactly one variant
// must be populated and it must match the identity's role; Variant reports which.
type RoleDetails struct {
	Admin   *AdminDetails   `json:"admin,omitempty"`
	Staff   *StaffDetails   `json:"staff,omitempty"`
	Student *StudentDetails `json:"student,omitempty"`
}

// Variant returns the role the populated variant belongs to, or an empty role
// when zero or multiple variants are set.
func (d RoleDetails) Variant() Role {
	var role Role
	count := 0
	if d.Admin != nil {
		role = RoleAdmin
		count++
	}
	if d.Staff != nil {
		role = RoleStaff
		count++
	}
	if d.Student != nil {
		role = RoleStudent
		count++
	}
	if count != 1 {
		return ""
	}
	return role
}

// Email returns the contact email carried by the populated variant.
func (d RoleDetails) ContactEmail() string {
	switch {
	case d.Admin != nil:
		return d.Admin.Email
	case d.Staff != nil:
		return d.Staff.Email
	case d.Student != nil:
		return d.Student.Email
	}
	return ""
}
