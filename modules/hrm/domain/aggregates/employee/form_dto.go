package employee

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// FormDTO is what the employee form submits: personal details plus the four
// hierarchy selections. Every level is mandatory on submission.
type FormDTO struct {
	EmployeeCode string `validate:"required"`
	FullName     string `validate:"required"`
	Email        string `validate:"required,email"`
	Phone        string `validate:"omitempty,max=32"`
	Designation  string `validate:"omitempty,max=128"`
	Segment      *int64 `validate:"required"`
	SubSegment   *int64 `validate:"required"`
	Project      *int64 `validate:"required"`
	Team         *int64 `validate:"required"`
}

var fieldLabels = map[string]string{
	"EmployeeCode": "Employee Code",
	"FullName":     "Full Name",
	"Email":        "Email",
	"Phone":        "Phone",
	"Designation":  "Designation",
	"Segment":      "Segment",
	"SubSegment":   "Sub-Segment",
	"Project":      "Project",
	"Team":         "Team",
}

func NewFormDTO(d Details, a Assignment) *FormDTO {
	return &FormDTO{
		EmployeeCode: strings.TrimSpace(d.EmployeeCode),
		FullName:     strings.TrimSpace(d.FullName),
		Email:        strings.TrimSpace(d.Email),
		Phone:        strings.TrimSpace(d.Phone),
		Designation:  strings.TrimSpace(d.Designation),
		Segment:      a.SegmentID,
		SubSegment:   a.SubSegmentID,
		Project:      a.ProjectID,
		Team:         a.TeamID,
	}
}

// Ok validates the form. The map is keyed by field name.
func (dto *FormDTO) Ok() (map[string]string, bool) {
	errorMessages := map[string]string{}
	errs := validate.Struct(dto)
	if errs == nil {
		return errorMessages, true
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(errs, &validationErrs) {
		errorMessages["form"] = errs.Error()
		return errorMessages, false
	}
	for _, err := range validationErrs {
		errorMessages[err.Field()] = message(err)
	}
	return errorMessages, len(errorMessages) == 0
}

func message(err validator.FieldError) string {
	label, ok := fieldLabels[err.Field()]
	if !ok {
		label = err.Field()
	}
	switch err.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return label + " must be a valid email address"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, err.Param())
	default:
		return fmt.Sprintf("%s is invalid", label)
	}
}

// ToInput converts a validated form into an API request body.
func (dto *FormDTO) ToInput() Input {
	return Input{
		Details: Details{
			EmployeeCode: dto.EmployeeCode,
			FullName:     dto.FullName,
			Email:        dto.Email,
			Phone:        dto.Phone,
			Designation:  dto.Designation,
		},
		Assignment: Assignment{
			SegmentID:    dto.Segment,
			SubSegmentID: dto.SubSegment,
			ProjectID:    dto.Project,
			TeamID:       dto.Team,
		},
	}
}
