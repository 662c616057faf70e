package store

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dealsense/internal/model"
)

// extractionJSON holds the marshaled JSON columns of one extraction row.
type extractionJSON struct {
	payload  []byte
	consumed []byte
	missing  []byte
}

func marshalExtraction(e *model.Extraction) (extractionJSON, error) {
	var out extractionJSON
	var err error

	if e.Payload != nil {
		if out.payload, err = json.Marshal(e.Payload); err != nil {
			return out, eris.Wrap(err, "store: marshal payload")
		}
	}
	if len(e.Provenance.ConsumedInputs) > 0 {
		if out.consumed, err = json.Marshal(e.Provenance.ConsumedInputs); err != nil {
			return out, eris.Wrap(err, "store: marshal consumed inputs")
		}
	}
	if len(e.Provenance.MissingInputs) > 0 {
		if out.missing, err = json.Marshal(e.Provenance.MissingInputs); err != nil {
			return out, eris.Wrap(err, "store: marshal missing inputs")
		}
	}
	return out, nil
}

func unmarshalExtraction(e *model.Extraction, payload, consumed, missing []byte) error {
	if len(payload) > 0 {
		e.Payload = &model.Payload{}
		if err := json.Unmarshal(payload, e.Payload); err != nil {
			return eris.Wrapf(err, "store: unmarshal payload for %s", e.ID)
		}
	}
	if len(consumed) > 0 {
		if err := json.Unmarshal(consumed, &e.Provenance.ConsumedInputs); err != nil {
			return eris.Wrapf(err, "store: unmarshal consumed inputs for %s", e.ID)
		}
	}
	if len(missing) > 0 {
		if err := json.Unmarshal(missing, &e.Provenance.MissingInputs); err != nil {
			return eris.Wrapf(err, "store: unmarshal missing inputs for %s", e.ID)
		}
	}
	return nil
}
