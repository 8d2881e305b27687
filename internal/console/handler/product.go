package handler

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/stockgate/internal/codec"
	"github.com/xela07ax/stockgate/internal/domain"
	"github.com/xela07ax/stockgate/internal/engine"
)

// maxBody с запасом на картинку в base64.
const maxBody = 8 << 20

type Submitter interface {
	Submit(ctx context.Context, caller domain.Caller, action engine.Action) (engine.Outcome, error)
}

type ProductReader interface {
	Get(ctx context.Context, id int64) (*domain.Product, error)
}

// SchemaValidator — проверка action_data по схеме типа заявки.
type SchemaValidator interface {
	Validate(rt domain.RequestType, actionData string) error
}

type ProductHandler struct {
	submitter Submitter
	products  ProductReader
	schemas   SchemaValidator
	logger    *zap.Logger
}

func NewProductHandler(s Submitter, products ProductReader, schemas SchemaValidator, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{submitter: s, products: products, schemas: schemas, logger: logger.Named("products")}
}

// Get GET /v1/products/{id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	p, err := h.products.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Create POST /v1/products
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, domain.RequestProductCreate, nil)
}

// Update PUT /v1/products/{id}
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, domain.RequestProductUpdate, func(a any, id int64) {
		a.(*domain.UpdateProductAction).ProductID = id
	})
}

// Delete DELETE /v1/products/{id}
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, domain.RequestProductDelete, func(a any, id int64) {
		a.(*domain.DeleteProductAction).ProductID = id
	})
}

// Transfer POST /v1/products/{id}/transfer
func (h *ProductHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, domain.RequestProductTransfer, func(a any, id int64) {
		a.(*domain.TransferProductAction).ProductID = id
	})
}

// submit разбирает тело в параметры мутации, id берется из пути.
// Исполнено сразу: 200 с результатом. Отложено до апрува: 202 с id заявки.
func (h *ProductHandler) submit(w http.ResponseWriter, r *http.Request, rt domain.RequestType, withID func(a any, id int64)) {
	caller, err := callerOf(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	action, err := h.decode(r, rt, withID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	out, err := h.submitter.Submit(r.Context(), caller, engine.Action{Type: rt, Payload: action})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if out.Status == engine.OutcomePending {
		writeJSON(w, http.StatusAccepted, out)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ProductHandler) decode(r *http.Request, rt domain.RequestType, withID func(a any, id int64)) (any, error) {
	action, err := codec.NewAction(rt)
	if err != nil {
		return nil, err
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrValidation, err)
	}
	if len(body) == 0 {
		// DELETE без тела
		body = []byte("{}")
	}
	if err := codec.Decode(string(body), action); err != nil {
		return nil, err
	}

	if withID != nil {
		id, err := idParam(r)
		if err != nil {
			return nil, err
		}
		withID(action, id)
	}

	data, err := codec.Encode(action)
	if err != nil {
		return nil, err
	}
	if err := h.schemas.Validate(rt, data); err != nil {
		return nil, err
	}
	return action, nil
}
