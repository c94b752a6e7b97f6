package storage

import (
	"encoding/json"
	"errors"

	"github.com/czbiohub/molecular-cross-validation/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeDataset(ds model.Dataset) ([]byte, error) {
	return json.Marshal(ds)
}

func DecodeDataset(data []byte) (model.Dataset, error) {
	var ds model.Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return model.Dataset{}, err
	}
	if err := checkVersion(ds.VersionedRecord); err != nil {
		return model.Dataset{}, err
	}
	return ds, nil
}

func EncodeSweepResult(res model.SweepResult) ([]byte, error) {
	return json.Marshal(res)
}

func DecodeSweepResult(data []byte) (model.SweepResult, error) {
	var res model.SweepResult
	if err := json.Unmarshal(data, &res); err != nil {
		return model.SweepResult{}, err
	}
	if err := checkVersion(res.VersionedRecord); err != nil {
		return model.SweepResult{}, err
	}
	return res, nil
}

func EncodeLossCurves(curves model.LossCurves) ([]byte, error) {
	return json.Marshal(curves)
}

func DecodeLossCurves(data []byte) (model.LossCurves, error) {
	var curves model.LossCurves
	if err := json.Unmarshal(data, &curves); err != nil {
		return model.LossCurves{}, err
	}
	if err := checkVersion(curves.VersionedRecord); err != nil {
		return model.LossCurves{}, err
	}
	return curves, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
