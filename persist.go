package clipmatrix

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Save serializes the matrix snapshot as yaml. Audio payloads are excluded;
// sources reference their material by path, so the snapshot stays small and
// round-trips losslessly through the data model.
func (m *Matrix) Save() ([]byte, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshaling matrix failed: %w", err)
	}
	return data, nil
}

// LoadMatrix deserializes a matrix snapshot, accepting json or yaml.
func LoadMatrix(data []byte) (*Matrix, error) {
	var m Matrix
	if errJSON := json.Unmarshal(data, &m); errJSON != nil {
		m = Matrix{}
		if errYaml := yaml.Unmarshal(data, &m); errYaml != nil {
			return nil, fmt.Errorf("the matrix could not be parsed as .json (%v) or .yml (%v)", errJSON, errYaml)
		}
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("loaded matrix is invalid: %w", err)
	}
	return &m, nil
}
