// Package codec сериализует параметры мутации в строку action_data,
// которую можно хранить в заявке и позже воспроизвести байт-в-байт.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/xela07ax/stockgate/internal/domain"
)

// Encode сериализует параметры действия в JSON. Бинарные поля ([]byte) уходят base64.
func Encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("codec: encode: %w", err)
	}
	return string(b), nil
}

// Decode разбирает action_data строго: неизвестные поля считаются ошибкой,
// чтобы повтор не выполнил мутацию с молча потерянными параметрами.
func Decode(data string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: codec: decode: %v", domain.ErrValidation, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: codec: trailing data after payload", domain.ErrValidation)
	}
	return nil
}

// NewAction возвращает пустую структуру параметров для типа заявки.
func NewAction(rt domain.RequestType) (any, error) {
	switch rt {
	case domain.RequestProductCreate:
		return &domain.CreateProductAction{}, nil
	case domain.RequestProductUpdate:
		return &domain.UpdateProductAction{}, nil
	case domain.RequestProductDelete:
		return &domain.DeleteProductAction{}, nil
	case domain.RequestProductTransfer:
		return &domain.TransferProductAction{}, nil
	}
	return nil, fmt.Errorf("%w: unknown request type %q", domain.ErrValidation, rt)
}

// DecodeAction = NewAction + Decode.
func DecodeAction(rt domain.RequestType, data string) (any, error) {
	v, err := NewAction(rt)
	if err != nil {
		return nil, err
	}
	if err := Decode(data, v); err != nil {
		return nil, err
	}
	return v, nil
}
