package codec

import (
	"embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"github.com/xela07ax/stockgate/internal/domain"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Validator проверяет action_data по JSON Schema своего типа заявки.
type Validator struct {
	schemas map[domain.RequestType]*gojsonschema.Schema
}

func NewValidator() (*Validator, error) {
	v := &Validator{schemas: make(map[domain.RequestType]*gojsonschema.Schema)}
	for _, rt := range []domain.RequestType{
		domain.RequestProductCreate,
		domain.RequestProductUpdate,
		domain.RequestProductDelete,
		domain.RequestProductTransfer,
	} {
		data, err := schemaFS.ReadFile("schemas/" + string(rt) + ".json")
		if err != nil {
			return nil, fmt.Errorf("codec: read schema %s: %w", rt, err)
		}
		s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			return nil, fmt.Errorf("codec: compile schema %s: %w", rt, err)
		}
		v.schemas[rt] = s
	}
	return v, nil
}

// Validate возвращает ErrValidation со списком нарушений.
func (v *Validator) Validate(rt domain.RequestType, actionData string) error {
	s, ok := v.schemas[rt]
	if !ok {
		return fmt.Errorf("%w: unknown request type %q", domain.ErrValidation, rt)
	}
	res, err := s.Validate(gojsonschema.NewStringLoader(actionData))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(msgs, "; "))
	}
	return nil
}
