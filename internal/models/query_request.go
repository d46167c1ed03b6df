package models

// QueryKind selects the parameter schema a read request is validated against.
type QueryKind int

const (
	QueryList QueryKind = iota
	QueryMetric
	QueryQuartiles
	QuerySummary
)

func (k QueryKind) String() string {
	switch k {
	case QueryList:
		return "list"
	case QueryMetric:
		return "metric"
	case QueryQuartiles:
		return "quartiles"
	case QuerySummary:
		return "summary"
	default:
		return "unknown"
	}
}

// NewReading is a validated write payload. DateCreated is already defaulted.
type NewReading struct {
	Type        SensorType
	Value       int
	DateCreated int64
}

// ReadingQuery is a validated set of read parameters. Nil fields impose no
// constraint.
type ReadingQuery struct {
	Type  *SensorType
	Start *int64
	End   *int64
}
