package train

import (
	"context"
	"math"
	"testing"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func testMatrix(rows, cols int, seed uint64) *mat.Dense {
	rng := rand.New(rand.NewSource(seed))
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Set(i, j, rng.Float64()*3)
		}
	}
	return out
}

func TestNewLinearAutoencoderValidatesRank(t *testing.T) {
	data := testMatrix(4, 3, 1)
	if _, err := NewLinearAutoencoder(data, 0, rand.NewSource(1)); err == nil {
		t.Fatal("expected error for rank 0")
	}
	if _, err := NewLinearAutoencoder(data, 4, rand.NewSource(1)); err == nil {
		t.Fatal("expected error for rank above gene count")
	}
	if _, err := NewLinearAutoencoder(nil, 1, rand.NewSource(1)); err == nil {
		t.Fatal("expected error for nil data")
	}
}

func TestLinearAutoencoderParamsLayout(t *testing.T) {
	data := testMatrix(5, 4, 2)
	m, err := NewLinearAutoencoder(data, 2, rand.NewSource(2))
	if err != nil {
		t.Fatalf("new autoencoder: %v", err)
	}
	if got, want := len(m.Params()), 2*4*2; got != want {
		t.Fatalf("expected %d parameters, got=%d", want, got)
	}

	// The encoder and decoder views share the parameter backing array.
	m.Params()[0] = 42
	if got := m.encoder().At(0, 0); got != 42 {
		t.Fatalf("expected encoder view to reflect parameter writes, got=%g", got)
	}
}

func TestLinearAutoencoderGradientMatchesFiniteDifference(t *testing.T) {
	data := testMatrix(6, 4, 3)
	m, err := NewLinearAutoencoder(data, 2, rand.NewSource(3))
	if err != nil {
		t.Fatalf("new autoencoder: %v", err)
	}

	batch := []int{0, 2, 4}
	grad := make([]float64, len(m.Params()))
	m.LossAndGrad(batch, grad)

	const h = 1e-6
	params := m.Params()
	for _, i := range []int{0, 3, 7, len(params) - 1} {
		orig := params[i]
		params[i] = orig + h
		plus := m.Loss(batch)
		params[i] = orig - h
		minus := m.Loss(batch)
		params[i] = orig

		numeric := (plus - minus) / (2 * h)
		if math.Abs(numeric-grad[i]) > 1e-4 {
			t.Fatalf("gradient mismatch at parameter %d: analytic=%g numeric=%g", i, grad[i], numeric)
		}
	}
}

func TestLinearAutoencoderLossAgreesWithLossAndGrad(t *testing.T) {
	data := testMatrix(5, 3, 4)
	m, err := NewLinearAutoencoder(data, 2, rand.NewSource(4))
	if err != nil {
		t.Fatalf("new autoencoder: %v", err)
	}

	batch := []int{1, 3}
	grad := make([]float64, len(m.Params()))
	if a, b := m.Loss(batch), m.LossAndGrad(batch, grad); math.Abs(a-b) > 1e-12 {
		t.Fatalf("expected matching losses, got %g and %g", a, b)
	}
}

func TestTrainedAutoencoderReducesLoss(t *testing.T) {
	data := testMatrix(16, 6, 5)
	src := rand.NewSource(5)
	m, err := NewLinearAutoencoder(data, 3, src)
	if err != nil {
		t.Fatalf("new autoencoder: %v", err)
	}

	trainRows, valRows, err := SplitRows(16, 0, src)
	if err != nil {
		t.Fatalf("split rows: %v", err)
	}
	cfg := Config{CycleLen: 5, MinCycles: 2, MaxEpochs: 60, BaseLR: 0.05}
	res, err := TrainUntilPlateau(context.Background(), m, trainRows, valRows, cfg, src)
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if len(res.TrainLoss) < 2 {
		t.Fatalf("expected multiple epochs, got=%d", len(res.TrainLoss))
	}
	first, last := res.TrainLoss[0], res.TrainLoss[len(res.TrainLoss)-1]
	if last >= first {
		t.Fatalf("expected training loss to drop, got first=%g last=%g", first, last)
	}
}

func TestAutoencoderFitIsDeterministic(t *testing.T) {
	data := testMatrix(10, 5, 6)
	cfg := Config{CycleLen: 2, MinCycles: 2, MaxEpochs: 10}

	fit := AutoencoderFit(context.Background(), cfg, 7)
	a, err := fit(data, 2)
	if err != nil {
		t.Fatalf("first fit: %v", err)
	}
	b, err := AutoencoderFit(context.Background(), cfg, 7)(data, 2)
	if err != nil {
		t.Fatalf("second fit: %v", err)
	}
	if !mat.Equal(a, b) {
		t.Fatal("expected identical reconstructions for identical seeds")
	}

	r, c := a.Dims()
	if r != 10 || c != 5 {
		t.Fatalf("expected reconstruction at the data shape, got %dx%d", r, c)
	}
}
