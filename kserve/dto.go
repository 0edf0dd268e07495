package kserve

const (
	DatatypeINT64 = "INT64"
	DatatypeFP32  = "FP32"

	InputIDs      = "input_ids"
	AttentionMask = "attention_mask"
	TokenTypeIDs  = "token_type_ids"
	OutputLogits  = "logits"

	KindGPU = "KIND_GPU"
	KindCPU = "KIND_CPU"
)

type InferTensor struct {
	Name     string        `json:"name"`
	Shape    []int64       `json:"shape"`
	Datatype string        `json:"datatype"`
	Data     []interface{} `json:"data,omitempty"`
}

type RequestedOutput struct {
	Name string `json:"name"`
}

type InferRequest struct {
	ID      string            `json:"id,omitempty"`
	Inputs  []InferTensor     `json:"inputs"`
	Outputs []RequestedOutput `json:"outputs,omitempty"`
}

type OutputTensor struct {
	Name     string    `json:"name"`
	Shape    []int64   `json:"shape"`
	Datatype string    `json:"datatype"`
	Data     []float64 `json:"data"`
}

type InferResponse struct {
	ModelName    string         `json:"model_name"`
	ModelVersion string         `json:"model_version,omitempty"`
	ID           string         `json:"id,omitempty"`
	Outputs      []OutputTensor `json:"outputs"`
}

type TensorMetadata struct {
	Name     string  `json:"name"`
	Datatype string  `json:"datatype"`
	Shape    []int64 `json:"shape"`
}

type ModelMetadata struct {
	Name     string           `json:"name"`
	Versions []string         `json:"versions,omitempty"`
	Platform string           `json:"platform"`
	Inputs   []TensorMetadata `json:"inputs"`
	Outputs  []TensorMetadata `json:"outputs"`
}

type InstanceGroup struct {
	Name  string `json:"name,omitempty"`
	Kind  string `json:"kind"`
	Count int    `json:"count,omitempty"`
	GPUs  []int  `json:"gpus,omitempty"`
}

// ModelConfig is the part of the Triton model configuration the tagger reads.
type ModelConfig struct {
	Name          string          `json:"name"`
	Platform      string          `json:"platform,omitempty"`
	Backend       string          `json:"backend,omitempty"`
	MaxBatchSize  int             `json:"max_batch_size"`
	InstanceGroup []InstanceGroup `json:"instance_group,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}
