package patient

import (
	"strings"
	"time"
)

// Sex is the administrative sex recorded for a patient.
type Sex string

const (
	SexMale   Sex = "M"
	SexFemale Sex = "F"
	SexOther  Sex = "Other"
)

// Valid reports whether s is one of the recognised values.
func (s Sex) Valid() bool {
	switch s {
	case SexMale, SexFemale, SexOther:
		return true
	}
	return false
}

// Record maps to the patient_record table and the patients collection.
type Record struct {
	ID             string    `db:"id" json:"id"`
	NationalID     string    `db:"national_id" json:"nationalId"`
	FullName       string    `db:"full_name" json:"fullName"`
	Age            int       `db:"age" json:"age"`
	Sex            Sex       `db:"sex" json:"sex"`
	PhotoReference string    `db:"photo_reference" json:"photoReference"`
	AdmissionDate  time.Time `db:"admission_date" json:"admissionDate"`
	Diagnosis      string    `db:"diagnosis" json:"diagnosis"`
	Reviewed       bool      `db:"reviewed" json:"reviewed"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// Clone returns a copy that shares no state with r.
func (r *Record) Clone() *Record {
	c := *r
	return &c
}

// normalize trims the free-text fields the way the store persists them.
func (r *Record) normalize() {
	r.NationalID = strings.TrimSpace(r.NationalID)
	r.FullName = strings.TrimSpace(r.FullName)
	r.Diagnosis = strings.TrimSpace(r.Diagnosis)
	r.PhotoReference = strings.TrimSpace(r.PhotoReference)
}

// CreateInput is the candidate record submitted by a client. Pointer fields
// distinguish "missing" from a zero value so required-field checks are exact.
type CreateInput struct {
	NationalID     *string `json:"nationalId"`
	FullName       *string `json:"fullName"`
	Age            *int    `json:"age"`
	Sex            *string `json:"sex"`
	PhotoReference *string `json:"photoReference"`
	AdmissionDate  *string `json:"admissionDate"`
	Diagnosis      *string `json:"diagnosis"`
	Reviewed       *bool   `json:"reviewed"`
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	NationalID     *string `json:"nationalId"`
	FullName       *string `json:"fullName"`
	Age            *int    `json:"age"`
	Sex            *string `json:"sex"`
	PhotoReference *string `json:"photoReference"`
	AdmissionDate  *string `json:"admissionDate"`
	Diagnosis      *string `json:"diagnosis"`
	Reviewed       *bool   `json:"reviewed"`
}

// Empty reports whether the patch carries no fields at all.
func (p *Patch) Empty() bool {
	return p.NationalID == nil && p.FullName == nil && p.Age == nil && p.Sex == nil &&
		p.PhotoReference == nil && p.AdmissionDate == nil && p.Diagnosis == nil && p.Reviewed == nil
}
