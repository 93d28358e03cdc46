package models

import "strings"

// Experiment is an experiment record keyed by (project_hashkey, experiment_hashkey)
type Experiment struct {
	ProjectHashkey       string `dynamodbav:"project_hashkey" json:"project_hashkey"`
	ExperimentHashkey    string `dynamodbav:"experiment_hashkey" json:"experiment_hashkey"`
	FileHashkey          string `dynamodbav:"file_hashkey,omitempty" json:"file_hashkey,omitempty"`
	ModelHashkey         string `dynamodbav:"model_hashkey,omitempty" json:"model_hashkey,omitempty"`
	ModelType            string `dynamodbav:"model_type,omitempty" json:"model_type,omitempty"`
	ModelArtifactHashkey string `dynamodbav:"model_artifact_hashkey,omitempty" json:"model_artifact_hashkey,omitempty"`
	BucketName           string `dynamodbav:"bucket_name" json:"bucket_name"`
	S3KeyPrefix          string `dynamodbav:"s3_key_prefix" json:"s3_key_prefix"`
	ProjectName          string `dynamodbav:"project_name,omitempty" json:"project_name,omitempty"`
	DatasetName          string `dynamodbav:"dataset_name,omitempty" json:"dataset_name,omitempty"`
	ModelName            string `dynamodbav:"model_name,omitempty" json:"model_name,omitempty"`
	Username             string `dynamodbav:"username,omitempty" json:"username,omitempty"`
	Status               string `dynamodbav:"status,omitempty" json:"status,omitempty"`
	CreatedTS            int64  `dynamodbav:"created_ts,omitempty" json:"created_ts,omitempty"`
	CreatedDT            string `dynamodbav:"created_dt,omitempty" json:"created_dt,omitempty"`
	UpdatedTS            int64  `dynamodbav:"updated_ts,omitempty" json:"updated_ts,omitempty"`
	UpdatedDT            string `dynamodbav:"updated_dt,omitempty" json:"updated_dt,omitempty"`
}

// ConfigKey is the blob key of the per-experiment modeling config
func (e *Experiment) ConfigKey() string {
	return e.S3KeyPrefix + "/config.yml"
}

// ArtifactsPrefix is where a run's outputs are uploaded
func (e *Experiment) ArtifactsPrefix() string {
	return e.S3KeyPrefix + "/artifacts"
}

// Dataset is a dataset (or dataset profile) record keyed by (project_hashkey, file_hashkey)
type Dataset struct {
	ProjectHashkey string   `dynamodbav:"project_hashkey" json:"project_hashkey"`
	FileHashkey    string   `dynamodbav:"file_hashkey" json:"file_hashkey"`
	BucketName     string   `dynamodbav:"bucket_name" json:"bucket_name"`
	SampleDFKey    string   `dynamodbav:"s3_key_sample_df_file,omitempty" json:"s3_key_sample_df_file,omitempty"`
	ColumnInfoKey  string   `dynamodbav:"s3_key_column_info_file,omitempty" json:"s3_key_column_info_file,omitempty"`
	DFPrefix       string   `dynamodbav:"s3_key_df_path,omitempty" json:"s3_key_df_path,omitempty"`
	DatasetName    string   `dynamodbav:"dataset_name,omitempty" json:"dataset_name,omitempty"`
	Artifacts      Manifest `dynamodbav:"artifacts,omitempty" json:"artifacts,omitempty"`
}

// ModelRepo describes a packaged model and the notebook to run per job type
type ModelRepo struct {
	ModelHashkey string `dynamodbav:"model_hashkey" json:"model_hashkey"`
	ModelName    string `dynamodbav:"model_name,omitempty" json:"model_name,omitempty"`
	BucketName   string `dynamodbav:"bucket_name" json:"bucket_name"`
	ZipKeyPath   string `dynamodbav:"s3_zip_key_path" json:"s3_zip_key_path"`

	// Notebooks maps job type to notebook filename, filled from `<job_type>_ipynb` attributes.
	Notebooks map[string]string `dynamodbav:"-" json:"notebooks,omitempty"`
}

const notebookAttrSuffix = "_ipynb"

// ModelRepoFromItem builds a ModelRepo from a raw key-value item. The notebook
// attributes are named after the job type, so the item cannot be decoded
// into a fixed struct.
func ModelRepoFromItem(raw map[string]interface{}) *ModelRepo {
	str := func(k string) string {
		s, _ := raw[k].(string)
		return s
	}
	m := &ModelRepo{
		ModelHashkey: str("model_hashkey"),
		ModelName:    str("model_name"),
		BucketName:   str("bucket_name"),
		ZipKeyPath:   str("s3_zip_key_path"),
	}
	m.SetNotebooks(raw)
	return m
}

// SetNotebooks collects `<job_type>_ipynb` string attributes from a raw item
func (m *ModelRepo) SetNotebooks(raw map[string]interface{}) {
	for k, v := range raw {
		s, ok := v.(string)
		if !ok || !strings.HasSuffix(k, notebookAttrSuffix) {
			continue
		}
		if m.Notebooks == nil {
			m.Notebooks = make(map[string]string)
		}
		m.Notebooks[strings.TrimSuffix(k, notebookAttrSuffix)] = s
	}
}

// Notebook returns the notebook registered for the job type
func (m *ModelRepo) Notebook(jobType string) (string, bool) {
	if m == nil || m.Notebooks == nil {
		return "", false
	}
	nb, ok := m.Notebooks[jobType]
	return nb, ok && nb != ""
}
