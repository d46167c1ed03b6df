package models

// MeanValue is the body of a mean query.
type MeanValue struct {
	Value float64 `json:"value"`
}

// Quartiles is the body of a quartiles query.
type Quartiles struct {
	Quartile1 int `json:"quartile_1"`
	Quartile3 int `json:"quartile_3"`
}

// DeviceSummary aggregates every matching reading of a single device.
type DeviceSummary struct {
	DeviceUUID       string  `json:"device_uuid"`
	NumberOfReadings int     `json:"number_of_readings"`
	MinReadingValue  int     `json:"min_reading_value"`
	MaxReadingValue  int     `json:"max_reading_value"`
	MeanReadingValue float64 `json:"mean_reading_value"`
	MedianValue      int     `json:"median_reading_value"`
	Quartile1Value   int     `json:"quartile_1_value"`
	Quartile3Value   int     `json:"quartile_3_value"`
}
