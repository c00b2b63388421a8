package patient

import (
	"strings"
	"time"
)

// FromInput converts a create request into a record, checking every required
// field. Dates without an offset are read in loc.
func FromInput(in CreateInput, loc *time.Location) (*Record, error) {
	verr := newValidationError()
	r := &Record{}

	requireText(verr, "nationalId", in.NationalID, &r.NationalID)
	requireText(verr, "fullName", in.FullName, &r.FullName)
	requireText(verr, "diagnosis", in.Diagnosis, &r.Diagnosis)

	if in.Age == nil {
		verr.add("age", "is required")
	} else {
		r.Age = *in.Age
	}
	if in.Sex == nil {
		verr.add("sex", "is required")
	} else {
		r.Sex = Sex(*in.Sex)
	}
	if in.AdmissionDate == nil || strings.TrimSpace(*in.AdmissionDate) == "" {
		verr.add("admissionDate", "is required")
	} else if t, err := ParseDate(*in.AdmissionDate, loc); err != nil {
		verr.add("admissionDate", err.Error())
	} else {
		r.AdmissionDate = t
	}
	if in.PhotoReference != nil {
		r.PhotoReference = *in.PhotoReference
	}
	if in.Reviewed != nil {
		r.Reviewed = *in.Reviewed
	}

	if err := verr.orNil(); err != nil {
		checkRecord(verr, r)
		return nil, verr
	}
	r.normalize()
	if err := Validate(r); err != nil {
		return nil, err
	}
	return r, nil
}

// ApplyPatch merges the supplied fields of p over a copy of r and validates
// the result. r itself is never modified.
func ApplyPatch(r *Record, p Patch, loc *time.Location) (*Record, error) {
	verr := newValidationError()
	out := r.Clone()

	if p.NationalID != nil {
		out.NationalID = *p.NationalID
	}
	if p.FullName != nil {
		out.FullName = *p.FullName
	}
	if p.Diagnosis != nil {
		out.Diagnosis = *p.Diagnosis
	}
	if p.Age != nil {
		out.Age = *p.Age
	}
	if p.Sex != nil {
		out.Sex = Sex(*p.Sex)
	}
	if p.PhotoReference != nil {
		out.PhotoReference = *p.PhotoReference
	}
	if p.Reviewed != nil {
		out.Reviewed = *p.Reviewed
	}
	if p.AdmissionDate != nil {
		t, err := ParseDate(*p.AdmissionDate, loc)
		if err != nil {
			verr.add("admissionDate", err.Error())
		} else {
			out.AdmissionDate = t
		}
	}

	out.normalize()
	checkRecord(verr, out)
	if err := verr.orNil(); err != nil {
		return nil, err
	}
	return out, nil
}

// Validate checks the structural constraints every persisted record obeys.
func Validate(r *Record) error {
	verr := newValidationError()
	checkRecord(verr, r)
	return verr.orNil()
}

func checkRecord(verr *ValidationError, r *Record) {
	if strings.TrimSpace(r.NationalID) == "" {
		verr.add("nationalId", "must not be empty")
	}
	if strings.TrimSpace(r.FullName) == "" {
		verr.add("fullName", "must not be empty")
	}
	if strings.TrimSpace(r.Diagnosis) == "" {
		verr.add("diagnosis", "must not be empty")
	}
	if r.Age < 0 {
		verr.add("age", "must be zero or greater")
	}
	if !r.Sex.Valid() {
		verr.add("sex", "must be one of M, F, Other")
	}
	if r.AdmissionDate.IsZero() {
		verr.add("admissionDate", "is required")
	}
}

func requireText(verr *ValidationError, field string, v *string, dst *string) {
	if v == nil {
		verr.add(field, "is required")
		return
	}
	*dst = *v
}
