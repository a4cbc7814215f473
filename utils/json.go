package utils

import (
	"encoding/json"
	"io"
)

// WriteIndentedJSON pretty prints input to w; used by the cmd tools.
func WriteIndentedJSON[T any](w io.Writer, input T) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(input)
}
