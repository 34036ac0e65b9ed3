package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"tensegrity/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Stamp returns the version header for records written now.
func Stamp() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeParamSet(r model.ParamSetRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeParamSet(data []byte) (model.ParamSetRecord, error) {
	var record model.ParamSetRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.ParamSetRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.ParamSetRecord{}, err
	}
	return record, nil
}

func EncodeTrial(r model.TrialRecord) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeTrial(data []byte) (model.TrialRecord, error) {
	var record model.TrialRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.TrialRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.TrialRecord{}, err
	}
	return record, nil
}

func EncodeTuningRun(r model.TuningRun) ([]byte, error) {
	return json.Marshal(r)
}

func DecodeTuningRun(data []byte) (model.TuningRun, error) {
	var run model.TuningRun
	if err := json.Unmarshal(data, &run); err != nil {
		return model.TuningRun{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.TuningRun{}, err
	}
	return run, nil
}

func EncodeFitnessHistory(history []float64) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeFitnessHistory(data []byte) ([]float64, error) {
	var history []float64
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}
