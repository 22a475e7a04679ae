package socrata

import "fmt"

// Dataset describes one SODA point dataset to ingest.
type Dataset struct {
	Name  string // logical source name used in storage: crime, abandoned, lights, sensor
	ID    string // portal 4x4 identifier
	Where string // SoQL filter
	Year  int
}

// Crime filters the incidents dataset to one primary type and year.
func Crime(id, category string, year int) Dataset {
	return Dataset{
		Name:  "crime",
		ID:    id,
		Where: fmt.Sprintf("year = %d AND primary_type = '%s'", year, category),
		Year:  year,
	}
}

// ServiceRequests filters a 311 dataset to one calendar year of a date field.
func ServiceRequests(name, id, dateField string, year int) Dataset {
	return Dataset{
		Name:  name,
		ID:    id,
		Where: fmt.Sprintf("date_extract_y(%s) = %d", dateField, year),
		Year:  year,
	}
}

// SensorAlerts filters the gunshot-notification dataset to one year.
func SensorAlerts(id string, year int) Dataset {
	return Dataset{
		Name:  "sensor",
		ID:    id,
		Where: fmt.Sprintf("date_extract_y(date) = %d", year),
		Year:  year,
	}
}
