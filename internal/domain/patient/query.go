package patient

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Query parameter names accepted by the list endpoint.
const (
	ParamText     = "text"
	ParamSex      = "sex"
	ParamAgeRange = "ageRange"
	ParamDateFrom = "dateFrom"
	ParamDateTo   = "dateTo"
	ParamSortKey  = "sortKey"
)

// SortKey selects the field and direction used to order a result set.
// The zero value orders by creation time, newest first.
type SortKey string

const (
	SortDefault       SortKey = ""
	SortNameAsc       SortKey = "name-asc"
	SortNameDesc      SortKey = "name-desc"
	SortAgeAsc        SortKey = "age-asc"
	SortAgeDesc       SortKey = "age-desc"
	SortAdmissionAsc  SortKey = "admission-asc"
	SortAdmissionDesc SortKey = "admission-desc"
)

// Valid reports whether k is a recognised sort key.
func (k SortKey) Valid() bool {
	switch k {
	case SortDefault, SortNameAsc, SortNameDesc, SortAgeAsc, SortAgeDesc, SortAdmissionAsc, SortAdmissionDesc:
		return true
	}
	return false
}

var ageRangePattern = regexp.MustCompile(`^(\d{1,3})-(\d{1,3}|\+)$`)

// AgeRange is an inclusive age interval. When Bounded is false there is no
// upper limit.
type AgeRange struct {
	Min     int
	Max     int
	Bounded bool
}

// ParseAgeRange parses "<min>-<max>" or "<min>-+". A range whose minimum
// exceeds its maximum is well-formed and contains no age.
func ParseAgeRange(s string) (AgeRange, error) {
	m := ageRangePattern.FindStringSubmatch(s)
	if m == nil {
		return AgeRange{}, fmt.Errorf("must look like 18-40 or 66-+")
	}
	min, _ := strconv.Atoi(m[1])
	if m[2] == "+" {
		return AgeRange{Min: min}, nil
	}
	max, _ := strconv.Atoi(m[2])
	return AgeRange{Min: min, Max: max, Bounded: true}, nil
}

// Contains reports whether age falls inside the range.
func (a AgeRange) Contains(age int) bool {
	if age < a.Min {
		return false
	}
	return !a.Bounded || age <= a.Max
}

func (a AgeRange) String() string {
	if !a.Bounded {
		return fmt.Sprintf("%d-+", a.Min)
	}
	return fmt.Sprintf("%d-%d", a.Min, a.Max)
}

// Filter is the parsed form of the list endpoint's query parameters. Zero
// fields impose no constraint.
type Filter struct {
	Text string
	Sex  Sex
	Age  *AgeRange
	From *time.Time
	To   *time.Time
	Sort SortKey
}

// ParseFilter validates raw query parameters. Empty values count as absent.
// Date-only bounds are read in loc and dateTo is widened to the last
// millisecond of its calendar day.
func ParseFilter(params url.Values, loc *time.Location) (Filter, error) {
	if loc == nil {
		loc = time.UTC
	}
	var f Filter
	verr := newValidationError()

	f.Text = strings.TrimSpace(params.Get(ParamText))

	if v := params.Get(ParamSex); v != "" {
		if s := Sex(v); s.Valid() {
			f.Sex = s
		} else {
			verr.add(ParamSex, "must be one of M, F, Other")
		}
	}

	if v := params.Get(ParamAgeRange); v != "" {
		r, err := ParseAgeRange(v)
		if err != nil {
			verr.add(ParamAgeRange, err.Error())
		} else {
			f.Age = &r
		}
	}

	if v := params.Get(ParamDateFrom); v != "" {
		t, err := ParseDate(v, loc)
		if err != nil {
			verr.add(ParamDateFrom, err.Error())
		} else {
			f.From = &t
		}
	}

	if v := params.Get(ParamDateTo); v != "" {
		t, err := ParseDate(v, loc)
		if err != nil {
			verr.add(ParamDateTo, err.Error())
		} else {
			end := EndOfDay(t, loc)
			f.To = &end
		}
	}

	if v := params.Get(ParamSortKey); v != "" {
		k := SortKey(v)
		if k.Valid() {
			f.Sort = k
		} else {
			verr.add(ParamSortKey, "must be one of name-asc, name-desc, age-asc, age-desc, admission-asc, admission-desc")
		}
	}

	if err := verr.orNil(); err != nil {
		return Filter{}, err
	}
	return f, nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDate reads an ISO-8601 date or date-time. Values without an offset are
// interpreted in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("must be an ISO-8601 date")
}

// EndOfDay returns 23:59:59.999 of t's calendar day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), loc)
}

// Values renders the filter back into query parameters.
func (f Filter) Values() url.Values {
	v := url.Values{}
	if f.Text != "" {
		v.Set(ParamText, f.Text)
	}
	if f.Sex != "" {
		v.Set(ParamSex, string(f.Sex))
	}
	if f.Age != nil {
		v.Set(ParamAgeRange, f.Age.String())
	}
	if f.From != nil {
		v.Set(ParamDateFrom, f.From.Format(time.RFC3339Nano))
	}
	if f.To != nil {
		v.Set(ParamDateTo, f.To.Format(time.RFC3339Nano))
	}
	if f.Sort != SortDefault {
		v.Set(ParamSortKey, string(f.Sort))
	}
	return v
}

// Match reports whether r satisfies every constraint in f. Exact and range
// checks run before the substring search.
func (f Filter) Match(r *Record) bool {
	if f.Sex != "" && r.Sex != f.Sex {
		return false
	}
	if f.Age != nil && !f.Age.Contains(r.Age) {
		return false
	}
	if f.From != nil && r.AdmissionDate.Before(*f.From) {
		return false
	}
	if f.To != nil && r.AdmissionDate.After(*f.To) {
		return false
	}
	if f.Text != "" {
		q := strings.ToLower(f.Text)
		return strings.Contains(strings.ToLower(r.FullName), q) ||
			strings.Contains(strings.ToLower(r.NationalID), q) ||
			strings.Contains(strings.ToLower(r.Diagnosis), q)
	}
	return true
}

// Apply returns the records matching f, ordered by f.Sort. The input slice is
// not modified and its order is the tie-breaker.
func (f Filter) Apply(records []*Record) []*Record {
	out := make([]*Record, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	f.Sort.Sort(out)
	return out
}

// Sort orders records in place. Equal keys keep their relative order.
func (k SortKey) Sort(records []*Record) {
	sort.SliceStable(records, k.less(records))
}

func (k SortKey) less(rs []*Record) func(i, j int) bool {
	switch k {
	case SortNameAsc, SortNameDesc:
		// Collators keep internal buffers, so each sort gets its own.
		col := collate.New(language.Spanish)
		if k == SortNameAsc {
			return func(i, j int) bool { return col.CompareString(rs[i].FullName, rs[j].FullName) < 0 }
		}
		return func(i, j int) bool { return col.CompareString(rs[i].FullName, rs[j].FullName) > 0 }
	case SortAgeAsc:
		return func(i, j int) bool { return rs[i].Age < rs[j].Age }
	case SortAgeDesc:
		return func(i, j int) bool { return rs[i].Age > rs[j].Age }
	case SortAdmissionAsc:
		return func(i, j int) bool { return rs[i].AdmissionDate.Before(rs[j].AdmissionDate) }
	case SortAdmissionDesc:
		return func(i, j int) bool { return rs[i].AdmissionDate.After(rs[j].AdmissionDate) }
	default:
		return func(i, j int) bool { return rs[i].CreatedAt.After(rs[j].CreatedAt) }
	}
}
