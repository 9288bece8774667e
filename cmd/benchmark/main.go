// Benchmark tool for evaluating Materna against labeled obstetric data.
//
// Usage:
//
//	go run cmd/benchmark/main.go -csv /path/to/pacientes.csv -url http://localhost:8000
//
// This tool:
//  1. Reads labeled patient data (features plus one 0/1 outcome column
//     per risk type)
//  2. Sends each patient to Materna for classification
//  3. Treats "alto" and "moderado" risk levels as a positive call and
//     compares against the labels
//  4. Calculates precision, recall, F1-score and a confusion matrix
//     per risk type
//
// Expected CSV columns (header required, order free):
//
//	edad_materna, paridad, controles_prenatales, semanas_gestacion,
//	hipertension_previa, diabetes_gestacional, cesarea_previa,
//	embarazo_multiple, sepsis, hipertension_gestacional,
//	hemorragia_posparto
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var riskColumns = []string{"sepsis", "hipertension_gestacional", "hemorragia_posparto"}

// LabeledPatient is one row of the evaluation dataset.
type LabeledPatient struct {
	MaternalAge         int
	Parity              int
	PrenatalVisits      int
	GestationalWeeks    float64
	PriorHypertension   int
	GestationalDiabetes int
	PriorCesarean       int
	MultiplePregnancy   int

	// Labels keyed by risk type column name.
	Labels map[string]bool
}

// PredictRequest matches the Materna API patient payload.
type PredictRequest struct {
	MaternalAge         int     `json:"edadMaterna"`
	Parity              int     `json:"paridad"`
	PrenatalVisits      int     `json:"controlesPrenatales"`
	GestationalWeeks    float64 `json:"semanasGestacion"`
	PriorHypertension   int     `json:"hipertensionPrevia"`
	GestationalDiabetes int     `json:"diabetesGestacional"`
	PriorCesarean       int     `json:"cesareaPrevia"`
	MultiplePregnancy   int     `json:"embarazoMultiple"`
}

// PredictResponse is the subset of the API response the benchmark needs.
type PredictResponse struct {
	ID       string `json:"id"`
	Outcomes []struct {
		RiskType    string  `json:"riesgo"`
		Probability float64 `json:"probabilidad"`
		RiskLevel   string  `json:"nivelRiesgo"`
	} `json:"predicciones"`
}

// RiskMetrics tracks the confusion matrix for one risk type.
type RiskMetrics struct {
	TruePositives  int64
	FalsePositives int64
	TrueNegatives  int64
	FalseNegatives int64
}

// Metrics tracks benchmark results across all risk types.
type Metrics struct {
	PerRisk map[string]*RiskMetrics

	TotalProcessed int64
	TotalErrors    int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled patient CSV file")
	baseURL := flag.String("url", "http://localhost:8000", "Materna base URL")
	limit := flag.Int("limit", 0, "Maximum patients to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each patient result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/pacientes.csv [-url http://localhost:8000]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("Materna benchmark - obstetric risk classification")
	fmt.Printf("CSV file:    %s\n", *csvPath)
	fmt.Printf("Materna URL: %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Materna not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Materna is running:")
		fmt.Println("  go run cmd/materna/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Materna is healthy")

	fmt.Printf("\nReading patients from %s...\n", *csvPath)
	patients, err := readPatientCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d patients\n", len(patients))

	for _, col := range riskColumns {
		positives := 0
		for _, p := range patients {
			if p.Labels[col] {
				positives++
			}
		}
		fmt.Printf("  - %-26s %d positives (%.2f%%)\n", col+":", positives,
			100*float64(positives)/float64(len(patients)))
	}

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	start := time.Now()
	metrics := runBenchmark(patients, *baseURL, *workers, *verbose)
	printResults(metrics, time.Since(start))
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readPatientCSV(path string, limit int) ([]LabeledPatient, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, required := range append([]string{
		"edad_materna", "paridad", "controles_prenatales", "semanas_gestacion",
		"hipertension_previa", "diabetes_gestacional", "cesarea_previa", "embarazo_multiple",
	}, riskColumns...) {
		if _, ok := colIndex[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var patients []LabeledPatient
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // skip malformed rows
		}

		intCol := func(name string) int {
			v, _ := strconv.Atoi(strings.TrimSpace(record[colIndex[name]]))
			return v
		}
		weeks, _ := strconv.ParseFloat(strings.TrimSpace(record[colIndex["semanas_gestacion"]]), 64)

		p := LabeledPatient{
			MaternalAge:         intCol("edad_materna"),
			Parity:              intCol("paridad"),
			PrenatalVisits:      intCol("controles_prenatales"),
			GestationalWeeks:    weeks,
			PriorHypertension:   intCol("hipertension_previa"),
			GestationalDiabetes: intCol("diabetes_gestacional"),
			PriorCesarean:       intCol("cesarea_previa"),
			MultiplePregnancy:   intCol("embarazo_multiple"),
			Labels:              make(map[string]bool, len(riskColumns)),
		}
		for _, col := range riskColumns {
			p.Labels[col] = strings.TrimSpace(record[colIndex[col]]) == "1"
		}

		patients = append(patients, p)
		if limit > 0 && len(patients) >= limit {
			break
		}
	}

	return patients, nil
}

func runBenchmark(patients []LabeledPatient, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{PerRisk: make(map[string]*RiskMetrics, len(riskColumns))}
	for _, col := range riskColumns {
		metrics.PerRisk[col] = &RiskMetrics{}
	}

	work := make(chan LabeledPatient, numWorkers*2)
	client := &http.Client{Timeout: 30 * time.Second}

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for patient := range work {
				evaluate(client, baseURL, patient, metrics, verbose)
			}
		}()
	}

	for _, p := range patients {
		work <- p
	}
	close(work)
	wg.Wait()

	return metrics
}

func evaluate(client *http.Client, baseURL string, patient LabeledPatient, metrics *Metrics, verbose bool) {
	req := PredictRequest{
		MaternalAge:         patient.MaternalAge,
		Parity:              patient.Parity,
		PrenatalVisits:      patient.PrenatalVisits,
		GestationalWeeks:    patient.GestationalWeeks,
		PriorHypertension:   patient.PriorHypertension,
		GestationalDiabetes: patient.GestationalDiabetes,
		PriorCesarean:       patient.PriorCesarean,
		MultiplePregnancy:   patient.MultiplePregnancy,
	}
	body, err := json.Marshal(req)
	if err != nil {
		atomic.AddInt64(&metrics.TotalErrors, 1)
		return
	}

	resp, err := client.Post(baseURL+"/api/v1/predict", "application/json", bytes.NewReader(body))
	if err != nil {
		atomic.AddInt64(&metrics.TotalErrors, 1)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		atomic.AddInt64(&metrics.TotalErrors, 1)
		return
	}

	var pred PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		atomic.AddInt64(&metrics.TotalErrors, 1)
		return
	}

	atomic.AddInt64(&metrics.TotalProcessed, 1)

	for _, outcome := range pred.Outcomes {
		rm, ok := metrics.PerRisk[outcome.RiskType]
		if !ok {
			continue
		}
		// alto or moderado counts as a positive call.
		positive := outcome.RiskLevel == "alto" || outcome.RiskLevel == "moderado"
		actual := patient.Labels[outcome.RiskType]

		switch {
		case positive && actual:
			atomic.AddInt64(&rm.TruePositives, 1)
		case positive && !actual:
			atomic.AddInt64(&rm.FalsePositives, 1)
		case !positive && !actual:
			atomic.AddInt64(&rm.TrueNegatives, 1)
		default:
			atomic.AddInt64(&rm.FalseNegatives, 1)
		}

		if verbose {
			fmt.Printf("%-26s p=%.4f level=%-8s label=%v\n",
				outcome.RiskType, outcome.Probability, outcome.RiskLevel, actual)
		}
	}
}

func printResults(metrics *Metrics, duration time.Duration) {
	total := atomic.LoadInt64(&metrics.TotalProcessed)

	fmt.Println("\nResults")
	fmt.Println(strings.Repeat("-", 64))
	fmt.Printf("Processed:  %d patients in %s\n", total, duration.Round(time.Millisecond))
	fmt.Printf("Errors:     %d\n", atomic.LoadInt64(&metrics.TotalErrors))
	if total > 0 {
		fmt.Printf("Throughput: %.1f patients/sec\n", float64(total)/duration.Seconds())
	}

	for _, col := range riskColumns {
		rm := metrics.PerRisk[col]
		tp := float64(atomic.LoadInt64(&rm.TruePositives))
		fp := float64(atomic.LoadInt64(&rm.FalsePositives))
		tn := float64(atomic.LoadInt64(&rm.TrueNegatives))
		fn := float64(atomic.LoadInt64(&rm.FalseNegatives))

		var precision, recall, f1 float64
		if tp+fp > 0 {
			precision = tp / (tp + fp)
		}
		if tp+fn > 0 {
			recall = tp / (tp + fn)
		}
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}

		fmt.Printf("\n%s\n", col)
		fmt.Printf("  TP=%d  FP=%d  TN=%d  FN=%d\n", int64(tp), int64(fp), int64(tn), int64(fn))
		fmt.Printf("  precision=%.4f  recall=%.4f  f1=%.4f\n", precision, recall, f1)
	}
}
