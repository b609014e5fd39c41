package cfddns

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// decodeJSON decodes r into v and rejects bodies missing fields tagged as required.
// Wire structs use pointer fields so that an absent field and a zero value can be told apart.
func decodeJSON(r io.Reader, v any) error {
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("error decoding response body: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("unexpected response body: %w", err)
	}
	return nil
}
