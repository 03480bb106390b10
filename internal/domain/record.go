package domain

import (
	"fmt"
	"time"
)

// MeasurementName identifies the Nova PM series in the time-series store.
const MeasurementName = "Nova PM"

// Field and tag keys written for each record.
const (
	FieldPM25      = "PM2.5"
	FieldPM10      = "PM10"
	FieldLatitude  = "Latitude"
	FieldLongitude = "Longitude"
	FieldSpeed     = "Speed"

	TagCar          = "Car"
	TagSerialNumber = "Serial Number"
)

// SchemaVariant is the record layout of a sensor log file.
type SchemaVariant int

const (
	VariantUnknown SchemaVariant = iota
	VariantLegacy                // 8 columns, quoted timestamp last
	VariantCompact               // 4 columns, ISO timestamp first
)

func (v SchemaVariant) String() string {
	switch v {
	case VariantLegacy:
		return "legacy"
	case VariantCompact:
		return "compact"
	default:
		return "unknown"
	}
}

// DetectVariant maps a header column count to its layout.
func DetectVariant(columnCount int) (SchemaVariant, error) {
	switch columnCount {
	case 8:
		return VariantLegacy, nil
	case 4:
		return VariantCompact, nil
	default:
		return VariantUnknown, fmt.Errorf("%w: header has %d columns, want 4 or 8", ErrUnsupportedFormat, columnCount)
	}
}

// MeasurementRecord is one normalized, timestamped reading ready for storage.
// Time keeps the offset it was written with. The JSON form mirrors an
// InfluxDB point: measurement, tags, fields and time.
type MeasurementRecord struct {
	Time        time.Time          `json:"time"`
	Measurement string             `json:"measurement"`
	Fields      map[string]float64 `json:"fields"`
	Tags        map[string]string  `json:"tags"`
}

// SerialNumber returns the sensor serial tag, present in both layouts.
func (r MeasurementRecord) SerialNumber() string {
	return r.Tags[TagSerialNumber]
}

// InfluxFields converts Fields to the map type expected by point builders.
func (r MeasurementRecord) InfluxFields() map[string]interface{} {
	fields := make(map[string]interface{}, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	return fields
}
