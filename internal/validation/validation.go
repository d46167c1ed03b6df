// Package validation checks and normalizes request payloads before any store
// access. Every failure is a *models.ValidationError.
package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"CapIot.readings/internal/models"
	"github.com/go-playground/validator/v10"
)

// writePayload is the schema of POST /devices/{uuid}/readings/.
type writePayload struct {
	Type        *string `json:"type" validate:"required,oneof=temperature humidity"`
	Value       *number `json:"value" validate:"required,integral,gte=0,lte=100"`
	DateCreated *number `json:"date_created" validate:"omitnil,integral,gte=0"`
}

type listPayload struct {
	Type  *string `json:"type" validate:"omitnil,oneof=temperature humidity"`
	Start *number `json:"start" validate:"omitnil,gte=0"`
	End   *number `json:"end" validate:"omitnil,gte=0"`
}

type metricPayload struct {
	Type  *string `json:"type" validate:"required,oneof=temperature humidity"`
	Start *number `json:"start" validate:"omitnil,gte=0"`
	End   *number `json:"end" validate:"omitnil,gte=0"`
}

type quartilesPayload struct {
	Type  *string `json:"type" validate:"required,oneof=temperature humidity"`
	Start *number `json:"start" validate:"required,gte=0"`
	End   *number `json:"end" validate:"required,gte=0"`
}

// number is a JSON number kept as its literal text, so integers beyond
// float64 precision reach the store unchanged. Range rules see it as a
// float64.
type number string

var numberType = reflect.TypeOf(number(""))

func (n *number) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || (b[0] != '-' && (b[0] < '0' || b[0] > '9')) {
		return &json.UnmarshalTypeError{Value: string(b), Type: numberType}
	}
	*n = number(b)
	return nil
}

func (n number) float() float64 {
	f, _ := strconv.ParseFloat(string(n), 64)
	return f
}

// largest exponent accepted before a literal is treated as out of range
const maxExponent = 400

// whole converts n to an int64 without going through float64. A fraction
// is rounded up when ceil is set and down otherwise. ok is false when the
// result does not fit in an int64.
func (n number) whole(ceil bool) (v int64, ok bool) {
	s := string(n)
	if i := strings.IndexAny(s, "eE"); i >= 0 {
		exp, err := strconv.Atoi(s[i+1:])
		if err != nil || exp > maxExponent || exp < -maxExponent {
			return 0, false
		}
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return 0, false
	}
	// Denom is always positive, so Div floors
	q := new(big.Int).Div(r.Num(), r.Denom())
	if ceil && !r.IsInt() {
		q.Add(q, big.NewInt(1))
	}
	if !q.IsInt64() {
		return 0, false
	}
	return q.Int64(), true
}

func outOfRange(field string) string {
	return fmt.Sprintf("%s must be an integer between 0 and %d", field, int64(math.MaxInt64))
}

// Validator holds the compiled schemas. It is safe for concurrent use.
type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

// New returns a Validator. now supplies the default date_created of a write;
// nil means time.Now.
func New(now func() time.Time) *Validator {
	if now == nil {
		now = time.Now
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		return field.Interface().(number).float()
	}, number(""))
	if err := v.RegisterValidation("integral", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return f == math.Trunc(f) && !math.IsInf(f, 0)
	}); err != nil {
		panic(fmt.Sprintf("registering integral rule: %v", err))
	}
	return &Validator{validate: v, now: now}
}

// NewReading validates a write payload. An absent body fails because type
// and value are required.
func (v *Validator) NewReading(body []byte) (models.NewReading, error) {
	var p writePayload
	if err := decode(body, &p); err != nil {
		return models.NewReading{}, err
	}
	if err := v.check(&p); err != nil {
		return models.NewReading{}, err
	}
	out := models.NewReading{
		Type:  models.SensorType(*p.Type),
		Value: int(p.Value.float()),
	}
	if p.DateCreated != nil {
		date, ok := p.DateCreated.whole(false)
		if !ok {
			return models.NewReading{}, models.Invalid(outOfRange("date_created"))
		}
		out.DateCreated = date
	} else {
		out.DateCreated = v.now().Unix()
	}
	return out, nil
}

// Query validates read parameters for the given endpoint kind. Parameters
// come from the JSON body; an empty body falls back to the URL query string.
func (v *Validator) Query(kind models.QueryKind, body []byte, query url.Values) (models.ReadingQuery, error) {
	var target any
	switch kind {
	case models.QueryList, models.QuerySummary:
		target = &listPayload{}
	case models.QueryMetric:
		target = &metricPayload{}
	case models.QueryQuartiles:
		target = &quartilesPayload{}
	default:
		return models.ReadingQuery{}, fmt.Errorf("unknown query kind %s", kind)
	}

	var err error
	if len(bytes.TrimSpace(body)) > 0 {
		err = decode(body, target)
	} else {
		err = fromQueryString(query, target)
	}
	if err != nil {
		return models.ReadingQuery{}, err
	}
	if err := v.check(target); err != nil {
		return models.ReadingQuery{}, err
	}

	typ, start, end := fields(target)
	var q models.ReadingQuery
	if typ != nil {
		t := models.SensorType(*typ)
		q.Type = &t
	}
	// readings carry whole seconds, so a fractional bound moves inward
	var problems []string
	if start != nil {
		if s, ok := start.whole(true); ok {
			q.Start = &s
		} else {
			problems = append(problems, outOfRange("start"))
		}
	}
	if end != nil {
		if e, ok := end.whole(false); ok {
			q.End = &e
		} else {
			problems = append(problems, outOfRange("end"))
		}
	}
	if len(problems) > 0 {
		return models.ReadingQuery{}, models.Invalid(problems...)
	}
	return q, nil
}

func fields(target any) (typ *string, start, end *number) {
	switch p := target.(type) {
	case *listPayload:
		return p.Type, p.Start, p.End
	case *metricPayload:
		return p.Type, p.Start, p.End
	case *quartilesPayload:
		return p.Type, p.Start, p.End
	}
	return nil, nil, nil
}

func (v *Validator) check(target any) error {
	err := v.validate.Struct(target)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validating payload: %w", err)
	}
	problems := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		problems = append(problems, describe(fe))
	}
	return models.Invalid(problems...)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.Join(strings.Fields(fe.Param()), ", "))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", fe.Field(), fe.Param())
	case "integral":
		return fmt.Sprintf("%s must be an integer", fe.Field())
	default:
		return fmt.Sprintf("%s failed the %q rule", fe.Field(), fe.Tag())
	}
}

// decode parses a JSON object into target. An empty body leaves target
// untouched.
func decode(body []byte, target any) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	err := json.Unmarshal(body, target)
	if err == nil {
		return nil
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "" {
			return models.Malformed("payload must be a JSON object")
		}
		return models.Invalid(fmt.Sprintf("%s must be a %s", typeErr.Field, expected(typeErr.Type)))
	}
	return models.Malformed("payload is not valid JSON: %v", err)
}

func expected(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == numberType {
		return "number"
	}
	switch t.Kind() {
	case reflect.Float32, reflect.Float64, reflect.Int, reflect.Int64:
		return "number"
	case reflect.String:
		return "string"
	default:
		return t.String()
	}
}

func fromQueryString(query url.Values, target any) error {
	var problems []string
	parse := func(name string) *number {
		raw := query.Get(name)
		if raw == "" {
			return nil
		}
		var n number
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			problems = append(problems, fmt.Sprintf("%s must be a number", name))
			return nil
		}
		return &n
	}
	var typ *string
	if query.Has("type") {
		t := query.Get("type")
		typ = &t
	}
	start, end := parse("start"), parse("end")
	if len(problems) > 0 {
		return models.Invalid(problems...)
	}

	switch p := target.(type) {
	case *listPayload:
		p.Type, p.Start, p.End = typ, start, end
	case *metricPayload:
		p.Type, p.Start, p.End = typ, start, end
	case *quartilesPayload:
		p.Type, p.Start, p.End = typ, start, end
	}
	return nil
}
