package client

import (
	"encoding/json"
	"fmt"
)

// ToMetaAndDocumentMap converts typed values into bulk-index meta and
// document pairs, lifting an "_id" field into the index meta when present.
func ToMetaAndDocumentMap[T any](values []T) ([]MetaMap, []DocumentMap, error) {
	documentMap := make([]DocumentMap, len(values))
	metaMap := make([]MetaMap, len(values))
	for i, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal value to JSON: %w", err)
		}
		var mapStruct map[string]interface{}
		if err := json.Unmarshal(data, &mapStruct); err != nil {
			return nil, nil, fmt.Errorf("failed to unmarshal JSON to map: %w", err)
		}

		if id, ok := mapStruct["_id"]; ok {
			delete(mapStruct, "_id")
			metaMap[i] = MetaMap{"index": map[string]interface{}{"_id": id}}
		} else {
			metaMap[i] = MetaMap{"index": map[string]interface{}{}}
		}
		documentMap[i] = mapStruct
	}
	return metaMap, documentMap, nil
}
