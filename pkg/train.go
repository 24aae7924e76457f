package pkg

import (
	"fmt"
	"math"
	mrand "math/rand"

	mat "github.com/nlpodyssey/spago/pkg/mat32"
	"github.com/nlpodyssey/spago/pkg/mat32/rand"
	"github.com/nlpodyssey/spago/pkg/ml/ag"
	"github.com/nlpodyssey/spago/pkg/ml/nn"
	"github.com/nlpodyssey/spago/pkg/ml/optimizers/gd"
	"github.com/nlpodyssey/spago/pkg/ml/optimizers/gd/adam"
	"github.com/rs/zerolog/log"

	"mensus/pkg/io"
	"mensus/pkg/loss"
	"mensus/pkg/model"
	"mensus/pkg/schema"
)

type Trainer struct {
	params    TrainingParameters
	optimizer *gd.GradientDescent
	model     *model.Model
	lossFunc  *loss.WeightedBinaryCrossEntropy
	rndGen    *rand.LockedRand
}

// Train fits a model on the labelled rows of trainFile and saves it to outputFileName.
func Train(trainFile, outputFileName string, config Config) (*model.Model, error) {
	m, err := trainInternal(trainFile, outputFileName, config)
	return m, stageError(StageTrain, err)
}

func trainInternal(trainFile, outputFileName string, config Config) (*model.Model, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	trainingParams := config.Training

	data, err := io.LoadData(trainFile)
	if err != nil {
		return nil, fmt.Errorf("error reading training data: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no data to train in %s", trainFile)
	}
	logClassDistribution(data)

	metaData := model.NewMetadata()
	if metaData.Scaler, err = model.FitStandardizer(data.Features()); err != nil {
		return nil, err
	}
	if metaData.ClassWeights, err = loss.BalancedTable(data.Labels(), schema.NumLabels); err != nil {
		return nil, fmt.Errorf("error computing class weights: %w", err)
	}
	for i, w := range metaData.ClassWeights {
		if w.Fallback {
			log.Warn().Str("Label", metaData.LabelNames[i]).Msg("Label has a single class, using neutral class weights")
		}
		log.Debug().Str("Label", metaData.LabelNames[i]).Float64("Negative", w.Negative).Float64("Positive", w.Positive).Msg("Class weights")
	}

	dataSet := io.NewDataSet(data, trainingParams.BatchSize, mrand.New(mrand.NewSource(int64(trainingParams.RndSeed))))
	trainSet, validationSet, err := dataSet.TrainValidationSplit(trainingParams.ValidationFraction)
	if err != nil {
		return nil, err
	}
	log.Info().Int("Train", trainSet.Size()).Int("Validation", validationSet.Size()).Msg("Split data")

	// Overwrite values that are only known after loading the data
	networkConfig := config.Network
	networkConfig.InputDimension = metaData.FeatureCount()
	networkConfig.OutputDimension = metaData.LabelCount()

	t := &Trainer{
		params:   trainingParams,
		lossFunc: loss.NewWeightedBinaryCrossEntropy(metaData.ClassWeights),
		rndGen:   rand.NewLockedRand(trainingParams.RndSeed),
	}
	t.model = &model.Model{MetaData: metaData, Network: model.NewNetwork(networkConfig)}
	t.model.Network.Init(t.rndGen)

	updaterConfig := adam.NewDefaultConfig()
	updaterConfig.StepSize = mat.Float(trainingParams.LearningRate)
	updater := adam.New(updaterConfig)
	t.optimizer = gd.NewOptimizer(updater, nn.NewDefaultParamsIterator(t.model.Network),
		gd.ClipGradByValue(mat.Float(trainingParams.GradientClipThreshold)))

	for epoch := 0; epoch < trainingParams.NumEpochs; epoch++ {
		t.optimizer.IncEpoch()
		trainSet.ResetOrder(io.RandomOrder)
		for i, batch := 0, trainSet.Next(); len(batch) > 0; i, batch = i+1, trainSet.Next() {
			batchLoss, err := t.trainBatch(batch)
			if err != nil {
				return nil, err
			}
			t.optimizer.Optimize()
			if i%t.params.ReportInterval == 0 {
				log.Debug().Int("Epoch", epoch).Int("Batch", i).Float64("Loss", batchLoss).Msg("")
			}
		}

		stats, err := t.evaluateEpoch(epoch, trainSet, validationSet)
		if err != nil {
			return nil, err
		}
		metaData.History = append(metaData.History, stats)
		log.Info().Int("Epoch", epoch).
			Float64("Loss", stats.Loss).
			Float64("ValLoss", stats.ValLoss).
			Float64("AUC", stats.AUC).
			Float64("ValAUC", stats.ValAUC).
			Msg("")
	}

	if err := io.SaveModelFile(outputFileName, t.model); err != nil {
		return nil, fmt.Errorf("error saving model to %s: %w", outputFileName, err)
	}
	log.Info().Str("File", outputFileName).Msg("Saved model")

	if trainingParams.PlotFile != "" {
		if err := plotHistory(metaData.History, trainingParams.PlotFile); err != nil {
			return nil, err
		}
		log.Info().Str("File", trainingParams.PlotFile).Msg("Saved training history plot")
	}

	if validationSet.Size() > 0 {
		log.Info().Msg("Validation report")
		if _, err := testInternal(t.model, validationSet.Records(), ""); err != nil {
			return nil, err
		}
	}
	return t.model, nil
}

func (t *Trainer) trainBatch(batch io.DataBatch) (float64, error) {
	t.optimizer.IncBatch()

	g := ag.NewGraph(ag.Rand(t.rndGen))
	defer g.Clear()
	output := t.model.Reify(g, nn.Training).Forward(t.model.Inputs(g, batch.Features())...)
	batchLoss, err := t.lossFunc.Forward(g, output, batch.Labels())
	if err != nil {
		return 0, err
	}
	g.Backward(batchLoss)
	return float64(batchLoss.ScalarValue()), nil
}

// evaluateEpoch scores both sets in inference mode. AUC is computed over all labels
// flattened into one ranking.
func (t *Trainer) evaluateEpoch(epoch int, trainSet, validationSet *io.DataSet) (model.EpochStats, error) {
	stats := model.EpochStats{Epoch: epoch, ValLoss: math.NaN(), ValAUC: math.NaN()}
	var err error
	if stats.Loss, stats.AUC, err = t.lossAndAUC(trainSet.Records()); err != nil {
		return stats, err
	}
	if validationSet.Size() > 0 {
		if stats.ValLoss, stats.ValAUC, err = t.lossAndAUC(validationSet.Records()); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (t *Trainer) lossAndAUC(data io.DataBatch) (float64, float64, error) {
	probabilities, lossValue, err := score(t.model, data)
	if err != nil {
		return 0, 0, err
	}
	var scores []float64
	var targets []bool
	for i, record := range data {
		scores = append(scores, probabilities[i]...)
		for _, label := range record.Labels {
			targets = append(targets, label == 1)
		}
	}
	return lossValue, rocAUC(scores, targets), nil
}

func logClassDistribution(data io.DataBatch) {
	counts := make([]int, schema.NumLabels)
	for _, record := range data {
		for i, v := range record.Labels {
			if v == 1 {
				counts[i]++
			}
		}
	}
	for i, name := range schema.LabelNames {
		log.Info().Str("Label", name).
			Int("Positive", counts[i]).
			Int("Negative", len(data)-counts[i]).
			Msg("Class distribution")
	}
}
