package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

// The summary and batch statistics use snake_case keys while the
// surrounding fields are camelCase. Consumers parse these keys, so the
// split is load-bearing, not a style accident.
func TestSummaryWireKeys(t *testing.T) {
	data, err := json.Marshal(PatientSummary{
		OverallRisk: RiskLevelAlto,
		HighestRisk: RiskSepsis,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	for _, key := range []string{
		"riesgo_general", "total_riesgos_altos", "total_riesgos_moderados",
		"total_riesgos_bajos", "requiere_atencion_especial",
		"riesgo_mas_alto", "probabilidad_mas_alta",
	} {
		if !strings.Contains(string(data), `"`+key+`"`) {
			t.Errorf("summary JSON missing key %q: %s", key, data)
		}
	}
}

func TestBatchStatisticsWireKeys(t *testing.T) {
	data, err := json.Marshal(BatchStatistics{
		HighRiskByType: map[RiskType]int{RiskSepsis: 1},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	for _, key := range []string{
		"total_procesados", "distribucion_riesgo_general",
		"pacientes_atencion_especial", "porcentaje_atencion_especial",
		"riesgos_altos_por_tipo", "promedios",
	} {
		if !strings.Contains(string(data), `"`+key+`"`) {
			t.Errorf("statistics JSON missing key %q: %s", key, data)
		}
	}
}

func TestPredictionWireKeysStayCamelCase(t *testing.T) {
	data, err := json.Marshal(Prediction{ID: "p1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	for _, key := range []string{"datosPaciente", "predicciones", "resumen", "createdAt"} {
		if !strings.Contains(string(data), `"`+key+`"`) {
			t.Errorf("prediction JSON missing key %q: %s", key, data)
		}
	}
}
