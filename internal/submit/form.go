// Package submit validates report and sighting forms and turns them into
// multipart payloads for the backend.
package submit

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lookout/internal/apperr"
)

// Subject is what went missing or was seen.
type Subject string

const (
	SubjectPet    Subject = "pet"
	SubjectPerson Subject = "person"
)

// DateLayout is the wire layout of the missing-since date.
const DateLayout = "2006-01-02"

// Location is a captured coordinate pair.
type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Validate implements validation.Validatable.
func (l Location) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Lat, validation.Min(-90.0), validation.Max(90.0)),
		validation.Field(&l.Lon, validation.Min(-180.0), validation.Max(180.0)),
	)
}

// ReportForm is a missing-person/pet report as entered by the user.
type ReportForm struct {
	Subject      Subject   `json:"type"`
	Name         string    `json:"full_name"`
	Description  string    `json:"description"`
	Phone        string    `json:"phone_number"`
	Location     *Location `json:"location"`
	MissingSince string    `json:"missing_since"`
	Reward       string    `json:"reward"`
	Photo        string    `json:"photo"`
}

// SightingForm is a sighting as entered by the user.
type SightingForm struct {
	Subject     Subject   `json:"type"`
	Description string    `json:"description"`
	Phone       string    `json:"phone_number"`
	Location    *Location `json:"location"`
	Photo       string    `json:"photo"`
}

var subjectRule = validation.In(SubjectPet, SubjectPerson).Error("must be pet or person")

func (f *ReportForm) normalize() {
	f.Subject = Subject(strings.ToLower(strings.TrimSpace(string(f.Subject))))
	if f.Subject == "" {
		f.Subject = SubjectPet
	}
	f.Name = strings.TrimSpace(f.Name)
	f.Description = strings.TrimSpace(f.Description)
	f.Phone = strings.TrimSpace(f.Phone)
	f.MissingSince = strings.TrimSpace(f.MissingSince)
	f.Reward = strings.TrimSpace(f.Reward)
	f.Photo = strings.TrimSpace(f.Photo)
}

func (f ReportForm) validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Subject, subjectRule),
		validation.Field(&f.Name, validation.Required.Error("name is required")),
		validation.Field(&f.Description, validation.Required.Error("description is required")),
		validation.Field(&f.Phone, validation.Required.Error("contact phone is required")),
		validation.Field(&f.Location, validation.Required.Error("location is required")),
		validation.Field(&f.MissingSince,
			validation.Required.Error("missing-since date is required"),
			validation.Date(DateLayout).Error("must be a date in YYYY-MM-DD format"),
		),
	)
}

func (f *SightingForm) normalize() {
	f.Subject = Subject(strings.ToLower(strings.TrimSpace(string(f.Subject))))
	if f.Subject == "" {
		f.Subject = SubjectPet
	}
	f.Description = strings.TrimSpace(f.Description)
	f.Phone = strings.TrimSpace(f.Phone)
	f.Photo = strings.TrimSpace(f.Photo)
}

func (f SightingForm) validate() error {
	return validation.ValidateStruct(&f,
		validation.Field(&f.Subject, subjectRule),
		validation.Field(&f.Description, validation.Required.Error("description is required")),
		validation.Field(&f.Phone, validation.Required.Error("contact phone is required")),
		validation.Field(&f.Location, validation.Required.Error("location is required")),
	)
}

// fieldErrors converts ozzo field errors into the shared validation error.
// Keys are the json field names of the form.
func fieldErrors(err error) (map[string]string, error) {
	if err == nil {
		return map[string]string{}, nil
	}
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return nil, err
	}
	fields := make(map[string]string, len(verrs))
	for k, v := range verrs {
		fields[k] = v.Error()
	}
	return fields, nil
}

func validationResult(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &apperr.ValidationError{Fields: fields}
}
