package domain

import "time"

// RiskType identifies one of the obstetric complications the engine
// predicts. The set is closed; the string values are the identifiers
// the models were published under and appear on the wire unchanged.
type RiskType string

const (
	RiskSepsis       RiskType = "sepsis"
	RiskHypertension RiskType = "hipertension_gestacional"
	RiskHemorrhage   RiskType = "hemorragia_posparto"
)

// RiskTypes lists all risk types in evaluation order. Orchestration,
// warm-up and tie-breaking all follow this order.
var RiskTypes = []RiskType{RiskSepsis, RiskHypertension, RiskHemorrhage}

// Valid reports whether rt belongs to the closed risk-type set.
func (rt RiskType) Valid() bool {
	switch rt {
	case RiskSepsis, RiskHypertension, RiskHemorrhage:
		return true
	}
	return false
}

// DisplayName returns the human-readable name for the risk type.
func (rt RiskType) DisplayName() string {
	switch rt {
	case RiskSepsis:
		return "Sepsis"
	case RiskHypertension:
		return "Hipertensión Gestacional"
	case RiskHemorrhage:
		return "Hemorragia Posparto"
	}
	return string(rt)
}

// RiskLevel is the threshold-based banding of a probability.
type RiskLevel string

const (
	RiskLevelAlto     RiskLevel = "alto"
	RiskLevelModerado RiskLevel = "moderado"
	RiskLevelBajo     RiskLevel = "bajo"
	RiskLevelMuyBajo  RiskLevel = "muy_bajo"
)

// ConfidenceLevel expresses how decisive a probability is, measured by
// its distance from the 0.5 decision boundary, independent of the risk
// level it lands in.
type ConfidenceLevel string

const (
	ConfidenceAlta  ConfidenceLevel = "alta"
	ConfidenceMedia ConfidenceLevel = "media"
	ConfidenceBaja  ConfidenceLevel = "baja"
)

// RiskOutcome is the per-risk-type classification result. Immutable
// once constructed.
type RiskOutcome struct {
	RiskType       RiskType        `json:"riesgo"`
	Probability    float64         `json:"probabilidad"`
	RiskLevel      RiskLevel       `json:"nivelRiesgo"`
	Confidence     ConfidenceLevel `json:"nivelConfianza"`
	Recommendation string          `json:"recomendacion"`
}

// PatientSummary condenses the three outcomes for one patient. Its
// keys are snake_case on the wire, unlike the camelCase named fields
// around it: upstream the summary was a plain dict, not a model with
// a camelCase alias, and consumers depend on those keys.
type PatientSummary struct {
	OverallRisk       RiskLevel `json:"riesgo_general"`
	HighRiskCount     int       `json:"total_riesgos_altos"`
	ModerateRiskCount int       `json:"total_riesgos_moderados"`
	LowRiskCount      int       `json:"total_riesgos_bajos"`
	SpecialAttention  bool      `json:"requiere_atencion_especial"`
	HighestRisk       RiskType  `json:"riesgo_mas_alto"`
	HighestProb       float64   `json:"probabilidad_mas_alta"`
}

// Prediction is the complete result for one patient: the three
// outcomes, the derived summary and any clinical alerts that fired.
type Prediction struct {
	ID        string        `json:"id"`
	Patient   PatientRecord `json:"datosPaciente"`
	Outcomes  []RiskOutcome `json:"predicciones"`
	Summary   PatientSummary `json:"resumen"`
	Alerts    []Alert       `json:"alertas,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

// RiskDistribution counts patients per overall risk level.
type RiskDistribution struct {
	Alto     int `json:"alto"`
	Moderado int `json:"moderado"`
	Bajo     int `json:"bajo"`
	MuyBajo  int `json:"muy_bajo"`
}

// BatchStatistics aggregates a fully processed batch. Recomputed per
// call, never cached. Snake_case keys for the same reason as
// PatientSummary.
type BatchStatistics struct {
	TotalProcessed       int                  `json:"total_procesados"`
	Distribution         RiskDistribution     `json:"distribucion_riesgo_general"`
	SpecialAttention     int                  `json:"pacientes_atencion_especial"`
	SpecialAttentionPct  float64              `json:"porcentaje_atencion_especial"`
	HighRiskByType       map[RiskType]int     `json:"riesgos_altos_por_tipo"`
	DistributionPct      DistributionPct      `json:"promedios"`
}

// DistributionPct holds percentage shares per risk level, two decimals.
type DistributionPct struct {
	Alto     float64 `json:"alto"`
	Moderado float64 `json:"moderado"`
	Bajo     float64 `json:"bajo"`
}

// recommendations maps every (risk type, risk level) pair to its
// clinical recommendation text. The table is total over the closed
// enums; Recommendation falls back to a generic protocol string for
// anything outside it.
var recommendations = map[RiskType]map[RiskLevel]string{
	RiskSepsis: {
		RiskLevelAlto:     "URGENTE: Evaluación inmediata. Monitoreo intensivo de signos vitales y marcadores de infección. Considerar antibióticos profilácticos.",
		RiskLevelModerado: "Vigilancia estrecha de signos de infección. Control de temperatura cada 4 horas. Educación sobre signos de alarma.",
		RiskLevelBajo:     "Seguimiento estándar. Higiene adecuada. Educación sobre signos de infección.",
		RiskLevelMuyBajo:  "Seguimiento rutinario prenatal. Medidas preventivas estándar.",
	},
	RiskHypertension: {
		RiskLevelAlto:     "URGENTE: Monitoreo continuo de presión arterial. Evaluación de preeclampsia. Posible hospitalización. Control de proteínas en orina.",
		RiskLevelModerado: "Monitoreo frecuente de presión arterial (cada 2-3 días). Control de edemas. Restricción de sal. Educación sobre signos de alarma.",
		RiskLevelBajo:     "Control prenatal regular con monitoreo de presión arterial. Dieta balanceada baja en sodio.",
		RiskLevelMuyBajo:  "Seguimiento prenatal estándar. Mantener estilo de vida saludable.",
	},
	RiskHemorrhage: {
		RiskLevelAlto:     "URGENTE: Preparación para parto en centro con banco de sangre. Disponibilidad de uterotónicos. Equipo quirúrgico en alerta.",
		RiskLevelModerado: "Parto en centro hospitalario. Preparación de sangre disponible. Vigilancia estrecha del alumbramiento y posparto inmediato.",
		RiskLevelBajo:     "Seguimiento estándar. Asegurar manejo activo del alumbramiento. Vigilancia posparto.",
		RiskLevelMuyBajo:  "Seguimiento prenatal rutinario. Parto con manejo activo del alumbramiento.",
	},
}

// FallbackRecommendation is returned for any combination outside the
// recommendation table. The lookup never fails.
const FallbackRecommendation = "Seguimiento según protocolo médico estándar"

// Recommendation returns the clinical recommendation for a (risk type,
// risk level) pair.
func Recommendation(rt RiskType, level RiskLevel) string {
	if byLevel, ok := recommendations[rt]; ok {
		if text, ok := byLevel[level]; ok {
			return text
		}
	}
	return FallbackRecommendation
}
