package pkg

import (
	"bytes"
	"fmt"
	gio "io"
	"math"
	"sort"
	"strings"

	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/nlpodyssey/spago/pkg/ml/stats"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"mensus/pkg/io"
	"mensus/pkg/loss"
	"mensus/pkg/model"
	"mensus/pkg/schema"
)

// evaluationBatchSize bounds the size of the graph built while scoring a data set.
const evaluationBatchSize = 256

type NoopWriter struct{}

func (x NoopWriter) Write(p []byte) (n int, err error) {
	return len(p), nil
}

// LabelReport holds the binary classification metrics of one label.
type LabelReport struct {
	Label   string
	Metrics *stats.ClassMetrics
	AUC     float64
}

type Report struct {
	Loss    float64
	AUC     float64
	MicroF1 float64
	MacroF1 float64
	Labels  []LabelReport
}

// Test evaluates the full model in modelFileName on the labelled rows of inputFileName
// and optionally writes one line of probabilities per row to outputFileName.
func Test(modelFileName, inputFileName, outputFileName string) (*Report, error) {
	m, err := io.LoadModelFile(modelFileName)
	if err != nil {
		return nil, stageError(StageTest, err)
	}
	data, err := io.LoadData(inputFileName)
	if err != nil {
		return nil, stageError(StageTest, fmt.Errorf("error loading data from %s: %w", inputFileName, err))
	}
	if len(data) == 0 {
		return nil, stageError(StageTest, fmt.Errorf("no data to test in %s", inputFileName))
	}
	report, err := testInternal(m, data, outputFileName)
	return report, stageError(StageTest, err)
}

type multiLabelEvaluator struct {
	threshold    float64
	labelNames   []string
	metrics      []*stats.ClassMetrics
	scores       [][]float64
	targets      [][]bool
	outputWriter gio.Writer
}

func newMultiLabelEvaluator(labelNames []string, outputWriter gio.Writer) *multiLabelEvaluator {
	e := &multiLabelEvaluator{
		threshold:    schema.DefaultThreshold,
		labelNames:   labelNames,
		metrics:      make([]*stats.ClassMetrics, len(labelNames)),
		scores:       make([][]float64, len(labelNames)),
		targets:      make([][]bool, len(labelNames)),
		outputWriter: outputWriter,
	}
	for i := range e.metrics {
		e.metrics[i] = stats.NewMetricCounter()
	}
	return e
}

func (e *multiLabelEvaluator) EvaluatePrediction(probabilities []float64, record *io.DataRecord) {
	predicted := schema.Threshold(probabilities, e.threshold)
	fields := make([]string, len(probabilities))
	for i, p := range probabilities {
		fields[i] = fmt.Sprintf("%.5f", p)
		actual := record.Labels[i] == 1
		e.scores[i] = append(e.scores[i], p)
		e.targets[i] = append(e.targets[i], actual)

		switch {
		case predicted[i] == 1 && actual:
			e.metrics[i].IncTruePos()
		case predicted[i] == 1 && !actual:
			e.metrics[i].IncFalsePos()
		case predicted[i] == 0 && actual:
			e.metrics[i].IncFalseNeg()
		default:
			e.metrics[i].IncTrueNeg()
		}
	}
	fmt.Fprintln(e.outputWriter, strings.Join(fields, ","))
}

func (e *multiLabelEvaluator) Report(lossValue float64) *Report {
	report := &Report{Loss: lossValue, Labels: make([]LabelReport, len(e.labelNames))}
	var allScores []float64
	var allTargets []bool
	for i, name := range e.labelNames {
		report.Labels[i] = LabelReport{
			Label:   name,
			Metrics: e.metrics[i],
			AUC:     rocAUC(e.scores[i], e.targets[i]),
		}
		allScores = append(allScores, e.scores[i]...)
		allTargets = append(allTargets, e.targets[i]...)
	}
	report.AUC = rocAUC(allScores, allTargets)
	report.MicroF1, report.MacroF1 = computeOverallF1(e.metrics)
	return report
}

// LogMetrics writes the classification report, one line per label in output order.
func (r *Report) LogMetrics() {
	for _, label := range r.Labels {
		result := label.Metrics
		log.Info().Str("Label", label.Label).
			Int("TP", result.TruePos).
			Int("FP", result.FalsePos).
			Int("TN", result.TrueNeg).
			Int("FN", result.FalseNeg).
			Float64("Precision", float64(result.Precision())).
			Float64("Recall", float64(result.Recall())).
			Float64("F1", float64(result.F1Score())).
			Float64("AUC", label.AUC).
			Msg("")
	}
	log.Info().Float64("MacroF1", r.MacroF1).Float64("MicroF1", r.MicroF1).Float64("AUC", r.AUC).Float64("Loss", r.Loss).Msg("")
}

func testInternal(m *model.Model, data io.DataBatch, outputFileName string) (*Report, error) {
	probabilities, lossValue, err := score(m, data)
	if err != nil {
		return nil, err
	}

	var output bytes.Buffer
	var outputWriter gio.Writer = NoopWriter{}
	if outputFileName != "" {
		outputWriter = &output
	}
	evaluator := newMultiLabelEvaluator(m.MetaData.LabelNames, outputWriter)
	for i, record := range data {
		evaluator.EvaluatePrediction(probabilities[i], record)
	}
	if outputFileName != "" {
		err := io.WriteFileAtomic(outputFileName, func(w gio.Writer) error {
			_, err := output.WriteTo(w)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("error writing output file %s: %w", outputFileName, err)
		}
	}
	report := evaluator.Report(lossValue)
	report.LogMetrics()
	return report, nil
}

// score runs data through the model in inference mode and returns the probabilities
// and the weighted loss averaged over all examples and labels.
func score(m *model.Model, data io.DataBatch) ([][]float64, float64, error) {
	lossFunc := loss.NewWeightedBinaryCrossEntropy(m.MetaData.ClassWeights)
	probabilities := make([][]float64, 0, len(data))
	total := 0.0
	for start := 0; start < len(data); start += evaluationBatchSize {
		end := start + evaluationBatchSize
		if end > len(data) {
			end = len(data)
		}
		batch := data[start:end]
		batchLoss, err := predictBatch(m, lossFunc, batch, func(p []float64) {
			probabilities = append(probabilities, p)
		})
		if err != nil {
			return nil, 0, err
		}
		total += batchLoss * float64(len(batch))
	}
	if len(data) == 0 {
		return probabilities, math.NaN(), nil
	}
	return probabilities, total / float64(len(data)), nil
}

func predictBatch(m *model.Model, lossFunc *loss.WeightedBinaryCrossEntropy, batch io.DataBatch, emit func([]float64)) (float64, error) {
	g := ag.NewGraph(ag.Rand(rand.NewLockedRand(42)))
	defer g.Clear()
	output := m.Reify(g, nn.Inference).Forward(m.Inputs(g, batch.Features())...)
	batchLoss, err := lossFunc.Forward(g, output, batch.Labels())
	if err != nil {
		return 0, err
	}
	for _, node := range output {
		emit(model.FromFloat(node.Value().Data()))
	}
	return float64(batchLoss.ScalarValue()), nil
}

// rocAUC is the area under the ROC curve of scores, NaN when only one class occurs.
func rocAUC(scores []float64, targets []bool) float64 {
	positives := 0
	for _, t := range targets {
		if t {
			positives++
		}
	}
	if positives == 0 || positives == len(targets) {
		return math.NaN()
	}
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return scores[order[i]] < scores[order[j]] })
	y := make([]float64, len(order))
	classes := make([]bool, len(order))
	for i, index := range order {
		y[i] = scores[index]
		classes[i] = targets[index]
	}
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

func computeOverallF1(metrics []*stats.ClassMetrics) (float64, float64) {
	macroF1 := 0.0
	for _, metric := range metrics {
		macroF1 += float64(metric.F1Score())
	}
	macroF1 /= float64(len(metrics))

	micro := stats.NewMetricCounter()
	for _, result := range metrics {
		micro.TruePos += result.TruePos
		micro.FalsePos += result.FalsePos
		micro.FalseNeg += result.FalseNeg
		micro.TrueNeg += result.TrueNeg
	}
	return float64(micro.F1Score()), macroF1
}
