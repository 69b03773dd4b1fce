package store

import "encoding/json"

// WriteJSON marshals v and replaces the document at path in one whole-file
// write.
func WriteJSON(s Store, path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.WriteFile(path, data)
}
