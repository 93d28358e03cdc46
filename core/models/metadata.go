package models

// Metadata is everything the fetch step resolved for a run. Only Experiment
// is guaranteed to be set; the related records are nil when absent.
type Metadata struct {
	Experiment    *Experiment
	Dataset       *Dataset
	Profile       *Dataset
	Model         *ModelRepo
	ModelArtifact *Result
	LogItem       *LogItem
}

// LogItem is the provenance entry written to the log table before a run starts
type LogItem struct {
	RunID             string         `dynamodbav:"run_id" json:"run_id"`
	Target            string         `dynamodbav:"target" json:"target"`
	JobType           string         `dynamodbav:"job_type" json:"job_type"`
	CreatedTS         int64          `dynamodbav:"created_ts" json:"created_ts"`
	CreatedDT         string         `dynamodbav:"created_dt" json:"created_dt"`
	ProjectHashkey    string         `dynamodbav:"project_hashkey" json:"project_hashkey"`
	ExperimentHashkey string         `dynamodbav:"experiment_hashkey" json:"experiment_hashkey"`
	FileHashkey       string         `dynamodbav:"file_hashkey" json:"file_hashkey"`
	Experiment        *Experiment    `dynamodbav:"experiment" json:"experiment"`
	Dataset           *Dataset       `dynamodbav:"dataset" json:"dataset"`
	Model             *ModelRepo     `dynamodbav:"model" json:"model"`
	Username          string         `dynamodbav:"username" json:"username"`
	Host              *InstanceShape `dynamodbav:"host,omitempty" json:"host,omitempty"`
}

// InstanceShape describes the compute the runner executes on
type InstanceShape struct {
	InstanceType string  `dynamodbav:"instance_type" json:"instance_type"`
	VCPUs        int32   `dynamodbav:"vcpus" json:"vcpus"`
	MemoryMiB    int64   `dynamodbav:"memory_mib" json:"memory_mib"`
	GPUs         int32   `dynamodbav:"gpus" json:"gpus"`
	GPUType      string  `dynamodbav:"gpu_type,omitempty" json:"gpu_type,omitempty"`
	PricePerHour float64 `dynamodbav:"price_per_hour,omitempty" json:"price_per_hour,omitempty"`
}
