package patient

import (
	"net/http"

	"github.com/elalerce/records/internal/platform/openapi"
)

// Describe adds the routes registered by RegisterRoutes to g.
func (h *Handler) Describe(g *openapi.Generator) {
	str := func() map[string]interface{} { return map[string]interface{}{"type": "string"} }
	enum := func(vals ...string) map[string]interface{} {
		return map[string]interface{}{"type": "string", "enum": vals}
	}
	date := map[string]interface{}{"type": "string", "format": "date"}

	g.AddSchema("PatientRecord", map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id":             str(),
			"nationalId":     str(),
			"fullName":       str(),
			"age":            map[string]interface{}{"type": "integer", "minimum": 0},
			"sex":            enum(string(SexMale), string(SexFemale), string(SexOther)),
			"photoReference": str(),
			"admissionDate":  map[string]interface{}{"type": "string", "format": "date-time"},
			"diagnosis":      str(),
			"reviewed":       map[string]interface{}{"type": "boolean"},
			"createdAt":      map[string]interface{}{"type": "string", "format": "date-time"},
			"updatedAt":      map[string]interface{}{"type": "string", "format": "date-time"},
		},
	})
	input := map[string]interface{}{
		"nationalId":     str(),
		"fullName":       str(),
		"age":            map[string]interface{}{"type": "integer", "minimum": 0},
		"sex":            enum(string(SexMale), string(SexFemale), string(SexOther)),
		"photoReference": str(),
		"admissionDate":  date,
		"diagnosis":      str(),
		"reviewed":       map[string]interface{}{"type": "boolean"},
	}
	g.AddSchema("PatientCreate", map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"nationalId", "fullName", "age", "sex", "admissionDate", "diagnosis"},
		"properties":           input,
	})
	g.AddSchema("PatientPatch", map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"minProperties":        1,
		"properties":           input,
	})

	idParam := openapi.Param{Name: "id", In: "path", Schema: str()}
	invalid := openapi.Response{Description: "Validation failed"}
	notFound := openapi.Response{Description: "No record with this id"}
	conflict := openapi.Response{Description: "National ID already exists"}

	g.AddRoute(openapi.Route{
		Method:      http.MethodGet,
		Path:        "/patients",
		Summary:     "List patients matching every supplied filter",
		OperationID: "listPatients",
		Tag:         "Patient",
		Params: []openapi.Param{
			{Name: ParamText, In: "query", Schema: str(), Description: "Case-insensitive substring of name, national ID or diagnosis"},
			{Name: ParamSex, In: "query", Schema: enum(string(SexMale), string(SexFemale), string(SexOther))},
			{Name: ParamAgeRange, In: "query", Schema: map[string]interface{}{"type": "string", "pattern": ageRangePattern.String()}, Description: "Inclusive range such as 18-40, or 66-+ for no upper bound"},
			{Name: ParamDateFrom, In: "query", Schema: date, Description: "Earliest admission date"},
			{Name: ParamDateTo, In: "query", Schema: date, Description: "Latest admission date; the whole day is included"},
			{Name: ParamSortKey, In: "query", Schema: enum(
				string(SortNameAsc), string(SortNameDesc), string(SortAgeAsc),
				string(SortAgeDesc), string(SortAdmissionAsc), string(SortAdmissionDesc),
			), Description: "Defaults to newest first"},
		},
		Responses: map[int]openapi.Response{
			http.StatusOK:                  {Description: "Matching records", Schema: "PatientRecord", Array: true},
			http.StatusUnprocessableEntity: invalid,
		},
	})
	g.AddRoute(openapi.Route{
		Method:      http.MethodGet,
		Path:        "/patients/{id}",
		Summary:     "Get a patient",
		OperationID: "getPatient",
		Tag:         "Patient",
		Params:      []openapi.Param{idParam},
		Responses: map[int]openapi.Response{
			http.StatusOK:                  {Description: "The record", Schema: "PatientRecord"},
			http.StatusNotFound:            notFound,
			http.StatusUnprocessableEntity: invalid,
		},
	})
	g.AddRoute(openapi.Route{
		Method:        http.MethodPost,
		Path:          "/patients",
		Summary:       "Create a patient",
		OperationID:   "createPatient",
		Tag:           "Patient",
		RequestSchema: "PatientCreate",
		Responses: map[int]openapi.Response{
			http.StatusCreated:             {Description: "The stored record", Schema: "PatientRecord"},
			http.StatusConflict:            conflict,
			http.StatusUnprocessableEntity: invalid,
		},
	})
	g.AddRoute(openapi.Route{
		Method:        http.MethodPut,
		Path:          "/patients/{id}",
		Summary:       "Update some fields of a patient",
		OperationID:   "updatePatient",
		Tag:           "Patient",
		Params:        []openapi.Param{idParam},
		RequestSchema: "PatientPatch",
		Responses: map[int]openapi.Response{
			http.StatusOK:                  {Description: "The updated record", Schema: "PatientRecord"},
			http.StatusNotFound:            notFound,
			http.StatusConflict:            conflict,
			http.StatusUnprocessableEntity: invalid,
		},
	})
}
