package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Attendance is the durable record of one concrete session occurrence.
// Created exactly once per (session, date) by the firing consumer with an
// empty bitmask; later attendance-marking mutates only PresenceBitmask.
type Attendance struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SessionID       string             `bson:"session_id" json:"session_id"`
	Date            string             `bson:"date" json:"date"`
	Day             string             `bson:"day" json:"day"`
	SlotID          string             `bson:"slot_id,omitempty" json:"slot_id,omitempty"`
	OverrideID      string             `bson:"override_id,omitempty" json:"override_id,omitempty"`
	Subject         string             `bson:"subject" json:"subject"`
	Program         string             `bson:"program" json:"program"`
	Department      string             `bson:"department" json:"department"`
	Semester        int                `bson:"semester" json:"semester"`
	AcademicYear    string             `bson:"academic_year" json:"academic_year"`
	PresenceBitmask string             `bson:"presence_bitmask" json:"presence_bitmask"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at" json:"updated_at"`
}

// StudentAttendanceSummary is the running per-(student, subject) aggregate.
// PresentIn and CountedIn hold the attendance ids already applied to
// Attended and TotalClasses respectively, which keeps delta replays
// idempotent under at-least-once feed delivery.
type StudentAttendanceSummary struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	StudentID    string             `bson:"student_id" json:"student_id"`
	Subject      string             `bson:"subject" json:"subject"`
	TotalClasses int                `bson:"total_classes" json:"total_classes"`
	Attended     int                `bson:"attended" json:"attended"`
	Percentage   float64            `bson:"percentage" json:"percentage"`
	PresentIn    []string           `bson:"present_in" json:"present_in"`
	CountedIn    []string           `bson:"counted_in" json:"counted_in"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

type Student struct {
	ID         string `bson:"_id" json:"id"`
	RollNumber int    `bson:"roll_number" json:"roll_number"`
	Name       string `bson:"name" json:"name"`
	Program    string `bson:"program" json:"program"`
	Department string `bson:"department" json:"department"`
	Semester   int    `bson:"semester" json:"semester"`
}
