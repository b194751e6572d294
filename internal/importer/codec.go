package importer

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// encodedRun holds the JSON columns of a run.
type encodedRun struct {
	params  []byte
	options []byte
}

func encodeRun(run *Run) (encodedRun, error) {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return encodedRun{}, eris.Wrap(err, "importer: marshal params")
	}
	options, err := json.Marshal(run.Options)
	if err != nil {
		return encodedRun{}, eris.Wrap(err, "importer: marshal options")
	}
	return encodedRun{params: params, options: options}, nil
}

func decodeRunJSON(run *Run, params, options []byte) error {
	if len(params) > 0 && string(params) != "null" {
		if err := json.Unmarshal(params, &run.Params); err != nil {
			return eris.Wrapf(err, "importer: unmarshal params of run %s", run.ID)
		}
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &run.Options); err != nil {
			return eris.Wrapf(err, "importer: unmarshal options of run %s", run.ID)
		}
	}
	return nil
}

func encodeProjection(p Projection) ([]byte, error) {
	b, err := json.Marshal(p)
	return b, eris.Wrap(err, "importer: marshal projection")
}

// encodePublish returns nil for a nil meta so the column stays NULL.
func encodePublish(m *PublishMeta) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	return b, eris.Wrap(err, "importer: marshal publish meta")
}

func decodeRecordJSON(rec *Record, raw, projection, publish []byte) error {
	if len(raw) > 0 {
		rec.Raw = json.RawMessage(raw)
	}
	if len(projection) > 0 {
		if err := json.Unmarshal(projection, &rec.Projection); err != nil {
			return eris.Wrapf(err, "importer: unmarshal projection of record %s", rec.ID)
		}
	}
	if len(publish) > 0 && string(publish) != "null" {
		rec.Publish = &PublishMeta{}
		if err := json.Unmarshal(publish, rec.Publish); err != nil {
			return eris.Wrapf(err, "importer: unmarshal publish meta of record %s", rec.ID)
		}
	}
	return nil
}

// rawBytes returns the record payload, defaulting to an empty object.
func rawBytes(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
