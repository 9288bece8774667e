// Package domain defines the core types and interfaces for Materna.
package domain

import "fmt"

// FeatureCount is the length of the vector every classifier was trained on.
const FeatureCount = 8

// PatientRecord holds the obstetric input data for one patient.
// Values are range-checked at the API boundary via Validate; the
// inference core trusts a record that passed validation.
type PatientRecord struct {
	MaternalAge         int     `json:"edadMaterna"`
	Parity              int     `json:"paridad"`
	PrenatalVisits      int     `json:"controlesPrenatales"`
	GestationalWeeks    float64 `json:"semanasGestacion"`
	PriorHypertension   int     `json:"hipertensionPrevia"`
	GestationalDiabetes int     `json:"diabetesGestacional"`
	PriorCesarean       int     `json:"cesareaPrevia"`
	MultiplePregnancy   int     `json:"embarazoMultiple"`
}

// FeatureVector assembles the record into the fixed-order vector the
// classifiers expect. The order is a training-time contract: it must
// match the column order the models were fitted with, and nothing at
// runtime can detect a reordering. Do not rearrange.
func (p PatientRecord) FeatureVector() []float64 {
	return []float64{
		float64(p.MaternalAge),
		float64(p.Parity),
		float64(p.PrenatalVisits),
		p.GestationalWeeks,
		float64(p.PriorHypertension),
		float64(p.GestationalDiabetes),
		float64(p.PriorCesarean),
		float64(p.MultiplePregnancy),
	}
}

// Validate checks the declared input ranges. It is the boundary's job
// to call this before handing the record to the prediction core.
func (p PatientRecord) Validate() error {
	if p.MaternalAge < 15 || p.MaternalAge > 60 {
		return fmt.Errorf("edadMaterna must be between 15 and 60, got %d", p.MaternalAge)
	}
	if p.Parity < 0 || p.Parity > 20 {
		return fmt.Errorf("paridad must be between 0 and 20, got %d", p.Parity)
	}
	if p.PrenatalVisits < 0 || p.PrenatalVisits > 20 {
		return fmt.Errorf("controlesPrenatales must be between 0 and 20, got %d", p.PrenatalVisits)
	}
	if p.GestationalWeeks < 4.0 || p.GestationalWeeks > 45.0 {
		return fmt.Errorf("semanasGestacion must be between 4.0 and 45.0, got %g", p.GestationalWeeks)
	}
	for _, f := range []struct {
		name  string
		value int
	}{
		{"hipertensionPrevia", p.PriorHypertension},
		{"diabetesGestacional", p.GestationalDiabetes},
		{"cesareaPrevia", p.PriorCesarean},
		{"embarazoMultiple", p.MultiplePregnancy},
	} {
		if f.value != 0 && f.value != 1 {
			return fmt.Errorf("%s must be 0 or 1, got %d", f.name, f.value)
		}
	}
	return nil
}
