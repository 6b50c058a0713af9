package ocrengine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	onnxrt "github.com/yalue/onnxruntime_go"

	"github.com/decklens/decklens/internal/mempool"
)

// ONNXConfig configures the ONNX recognition engine.
type ONNXConfig struct {
	ModelPath   string
	DictPath    string
	ImageHeight int
	MaxWidth    int
	PadWidth    int
	NumThreads  int
}

// DefaultONNXConfig returns the baseline PaddleOCR recognition settings.
func DefaultONNXConfig() ONNXConfig {
	return ONNXConfig{
		ImageHeight: 48,
		MaxWidth:    1024,
		PadWidth:    32,
		NumThreads:  0,
	}
}

// ONNXEngine recognizes text line strips with a CTC recognition model
// through ONNX Runtime.
type ONNXEngine struct {
	config     ONNXConfig
	session    *onnxrt.DynamicAdvancedSession
	inputInfo  onnxrt.InputOutputInfo
	outputInfo onnxrt.InputOutputInfo
	charset    *Charset
	mu         sync.Mutex
}

// NewONNXEngine loads the recognition model and its dictionary.
func NewONNXEngine(config ONNXConfig) (*ONNXEngine, error) {
	if config.ModelPath == "" {
		return nil, errors.New("model path is required")
	}
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s", config.ModelPath)
	}
	if config.DictPath == "" {
		return nil, errors.New("dictionary path is required")
	}

	if !onnxrt.IsInitialized() {
		if err := onnxrt.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX Runtime: %w", err)
		}
	}

	inputs, outputs, err := onnxrt.GetInputOutputInfo(config.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) != 1 {
		return nil, fmt.Errorf("expected 1 input, got %d", len(inputs))
	}
	if len(outputs) != 1 {
		return nil, fmt.Errorf("expected 1 output, got %d", len(outputs))
	}

	inputInfo := inputs[0]
	outputInfo := outputs[0]
	if len(inputInfo.Dimensions) != 4 {
		return nil, fmt.Errorf("expected 4D input tensor, got %dD", len(inputInfo.Dimensions))
	}
	// Input is [N, C, H, W]. Adopt the model's fixed height when config left it zero.
	if h := inputInfo.Dimensions[2]; h > 0 && config.ImageHeight <= 0 {
		config.ImageHeight = int(h)
	}
	if config.ImageHeight <= 0 {
		config.ImageHeight = DefaultONNXConfig().ImageHeight
	}

	charset, err := LoadCharset(config.DictPath)
	if err != nil {
		return nil, err
	}
	slog.Debug("recognition dictionary loaded", "path", config.DictPath, "charset_size", charset.Size())

	sessionOptions, err := onnxrt.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := sessionOptions.Destroy(); err != nil {
			fmt.Fprintf(os.Stderr, "Error destroying session options: %v\n", err)
		}
	}()

	if config.NumThreads > 0 {
		if err := sessionOptions.SetIntraOpNumThreads(config.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	session, err := onnxrt.NewDynamicAdvancedSession(
		config.ModelPath,
		[]string{inputInfo.Name},
		[]string{outputInfo.Name},
		sessionOptions,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXEngine{
		config:     config,
		session:    session,
		inputInfo:  inputInfo,
		outputInfo: outputInfo,
		charset:    charset,
	}, nil
}

// Name identifies the engine in results and logs.
func (e *ONNXEngine) Name() string { return "onnx" }

// Recognize splits the region into line strips and runs recognition on each,
// returning one token per line in top-to-bottom order.
func (e *ONNXEngine) Recognize(ctx context.Context, region image.Image) ([]Token, error) {
	if region == nil {
		return nil, errors.New("region image is nil")
	}

	strips := splitLines(region)
	tokens := make([]Token, 0, len(strips))
	for _, strip := range strips {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, conf, err := e.recognizeStrip(strip.img)
		if err != nil {
			return nil, fmt.Errorf("line at y=%d: %w", strip.box.Y, err)
		}
		if text == "" {
			continue
		}
		tokens = append(tokens, Token{Text: text, Box: strip.box, Confidence: conf})
	}
	return tokens, nil
}

func (e *ONNXEngine) recognizeStrip(strip image.Image) (string, float64, error) {
	resized, _, err := resizeForRecognition(strip, e.config.ImageHeight, e.config.MaxWidth, e.config.PadWidth)
	if err != nil {
		return "", 0, err
	}
	data, shape := normalizeNCHW(resized)
	logits, outShape, err := e.runInference(data, shape)
	// Both tensors are destroyed inside runInference, the input buffer can
	// go back to the pool.
	mempool.PutFloat32(data)
	if err != nil {
		return "", 0, err
	}

	seqs := decodeCTCGreedy(logits, outShape)
	if len(seqs) == 0 {
		return "", 0, nil
	}
	seq := seqs[0]
	return e.charset.Decode(seq.Indices), sequenceConfidence(seq.Probs), nil
}

func (e *ONNXEngine) runInference(data []float32, shape []int64) ([]float32, []int64, error) {
	inputTensor, err := onnxrt.NewTensor(onnxrt.NewShape(shape...), data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() {
		if err := inputTensor.Destroy(); err != nil {
			fmt.Fprintf(os.Stderr, "Error destroying input tensor: %v\n", err)
		}
	}()

	e.mu.Lock()
	session := e.session
	e.mu.Unlock()
	if session == nil {
		return nil, nil, errors.New("engine is closed")
	}

	outputs := []onnxrt.Value{nil}
	if err := session.Run([]onnxrt.Value{inputTensor}, outputs); err != nil {
		return nil, nil, fmt.Errorf("inference failed: %w", err)
	}
	outTensor := outputs[0]
	defer func() {
		if err := outTensor.Destroy(); err != nil {
			fmt.Fprintf(os.Stderr, "Error destroying output tensor: %v\n", err)
		}
	}()

	floatTensor, ok := outTensor.(*onnxrt.Tensor[float32])
	if !ok {
		return nil, nil, errors.New("unexpected output tensor type")
	}

	logits := floatTensor.GetData()
	outShape := floatTensor.GetShape()
	out := make([]float32, len(logits))
	copy(out, logits)
	dims := make([]int64, len(outShape))
	copy(dims, outShape)
	return out, dims, nil
}

// Close releases the ONNX session.
func (e *ONNXEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		if err := e.session.Destroy(); err != nil {
			fmt.Fprintf(os.Stderr, "Error destroying session: %v\n", err)
		}
		e.session = nil
	}
	return nil
}
