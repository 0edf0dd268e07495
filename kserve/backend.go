package kserve

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"text2phenotype.com/postag/inference"
	"text2phenotype.com/postag/logger"
	"text2phenotype.com/postag/types"
)

// Backend scores sequences with a token classification model served over the
// KServe v2 protocol. The server returns logits; Backend applies softmax.
type Backend struct {
	client *Client
	labels []string
	logger zerolog.Logger
}

var _ inference.Backend = (*Backend)(nil)

// NewBackend checks that the server is live and ready before returning.
func NewBackend(ctx context.Context, client *Client, labels []string) (*Backend, error) {
	backendLogger := logger.NewLogger("KServe backend").With().Str("model", client.ModelName()).Logger()

	live, err := client.ServerLive(ctx)
	if err != nil {
		return nil, err
	}
	if !live {
		return nil, errors.New("server is not live")
	}

	ready, err := client.ServerReady(ctx)
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, errors.New("server is not ready")
	}

	metadata, err := client.ModelMetadata(ctx)
	if err != nil {
		return nil, err
	}
	backendLogger.Info().
		Str("platform", metadata.Platform).
		Strs("versions", metadata.Versions).
		Int("labels", len(labels)).
		Msg("Got model metadata")

	return &Backend{client: client, labels: labels, logger: backendLogger}, nil
}

func (b *Backend) Labels() []string {
	return b.labels
}

// Devices maps the model instance groups to devices; a model without
// instance groups is assumed to run on the cpu. The config endpoint is a
// Triton extension, so servers without it report cpu as well.
func (b *Backend) Devices(ctx context.Context) ([]types.Device, error) {
	cfg, err := b.client.ModelConfig(ctx)
	if IsUnsupported(err) {
		return []types.Device{types.DeviceCPU}, nil
	}
	if err != nil {
		return nil, err
	}

	var devices []types.Device
	seen := make(map[types.Device]bool)
	for _, group := range cfg.InstanceGroup {
		device := types.DeviceCPU
		if group.Kind == KindGPU {
			device = types.DeviceCUDA
		}
		if !seen[device] {
			seen[device] = true
			devices = append(devices, device)
		}
	}
	if len(devices) == 0 {
		devices = append(devices, types.DeviceCPU)
	}
	return devices, nil
}

func (b *Backend) Infer(ctx context.Context, batch []inference.Sequence) ([][][]float64, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	seqLen := 0
	for _, seq := range batch {
		if len(seq.IDs) > seqLen {
			seqLen = len(seq.IDs)
		}
	}

	shape := []int64{int64(len(batch)), int64(seqLen)}
	ids := make([]interface{}, 0, len(batch)*seqLen)
	mask := make([]interface{}, 0, len(batch)*seqLen)
	typeIDs := make([]interface{}, 0, len(batch)*seqLen)
	for _, seq := range batch {
		for i := 0; i < seqLen; i++ {
			var id, m int64
			if i < len(seq.IDs) {
				id, m = int64(seq.IDs[i]), int64(seq.Mask[i])
			}
			ids = append(ids, id)
			mask = append(mask, m)
			typeIDs = append(typeIDs, int64(0))
		}
	}

	resp, err := b.client.ModelInfer(ctx, &InferRequest{
		Inputs: []InferTensor{
			{Name: InputIDs, Shape: shape, Datatype: DatatypeINT64, Data: ids},
			{Name: AttentionMask, Shape: shape, Datatype: DatatypeINT64, Data: mask},
			{Name: TokenTypeIDs, Shape: shape, Datatype: DatatypeINT64, Data: typeIDs},
		},
		Outputs: []RequestedOutput{{Name: OutputLogits}},
	})
	if err != nil {
		return nil, err
	}

	logits, err := b.findLogits(resp, len(batch), seqLen)
	if err != nil {
		return nil, err
	}

	numLabels := len(b.labels)
	res := make([][][]float64, len(batch))
	for si, seq := range batch {
		rows := make([][]float64, len(seq.IDs))
		for i := range seq.IDs {
			if seq.Mask[i] == 0 {
				continue
			}
			offset := (si*seqLen + i) * numLabels
			rows[i] = inference.Softmax(logits.Data[offset : offset+numLabels])
		}
		res[si] = rows
	}

	b.logger.Debug().Int("sequences", len(batch)).Int("length", seqLen).Msg("Inferred batch")
	return res, nil
}

func (b *Backend) findLogits(resp *InferResponse, batchSize int, seqLen int) (*OutputTensor, error) {
	for i := range resp.Outputs {
		out := &resp.Outputs[i]
		if out.Name != OutputLogits {
			continue
		}

		expected := []int64{int64(batchSize), int64(seqLen), int64(len(b.labels))}
		if len(out.Shape) != 3 || out.Shape[0] != expected[0] || out.Shape[1] != expected[1] || out.Shape[2] != expected[2] {
			return nil, fmt.Errorf("unexpected logits shape %v, want %v", out.Shape, expected)
		}
		if len(out.Data) != batchSize*seqLen*len(b.labels) {
			return nil, fmt.Errorf("logits hold %d values, want %d", len(out.Data), batchSize*seqLen*len(b.labels))
		}
		return out, nil
	}
	return nil, fmt.Errorf("response has no %s output", OutputLogits)
}

func (b *Backend) Close() error {
	b.client.httpClient.CloseIdleConnections()
	return nil
}
