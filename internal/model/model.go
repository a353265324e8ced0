package model

import "time"

const (
	RoleStudent    = "student"
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

const (
	ClassPending  = "pending"
	ClassApproved = "approved"
	ClassDenied   = "denied"
)

type User struct {
	ID        string
	Email     string
	Name      string
	Role      string
	CreatedAt time.Time
}

type Class struct {
	ID              string
	Name            string
	InstructorName  string
	InstructorEmail string
	Image           string
	Price           float64
	AvailableSeats  int32
	TotalStudents   int32
	Status          string
	Feedback        *string
	CreatedAt       time.Time
}

// Enrollment is a student's intent to pay for a seat. It exists from
// creation until it is either consumed by a settlement or withdrawn.
type Enrollment struct {
	ID           string
	StudentEmail string
	ClassID      string
	ClassName    string
	CreatedAt    time.Time
}

// Payment is append-only: created exactly once per successful settlement,
// never deleted in normal operation.
type Payment struct {
	ID            string
	Email         string
	ClassID       string
	EnrollmentID  string
	ClassName     string
	Amount        float64
	TransactionID string
	CreatedAt     time.Time
}

type BlogPost struct {
	ID        string
	Title     string
	Author    string
	Content   string
	CreatedAt time.Time
}
