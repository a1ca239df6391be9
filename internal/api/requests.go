package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fastprodman/vmpay-authorizer/internal/services/authorizer"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// report json names in error messages
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

type productRequest struct {
	UPCCode   string `json:"upc_code" validate:"required"`
	Quantity  *int   `json:"quantity" validate:"required,gte=0"`
	UnitValue string `json:"unit_value" validate:"required"`
}

type authorizeRequest struct {
	OrderUUID          string           `json:"order_uuid" validate:"required"`
	OccurredAt         string           `json:"occurred_at" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	TagNumber          string           `json:"tag_number" validate:"required"`
	MachineAssetNumber string           `json:"machine_asset_number" validate:"required"`
	Products           []productRequest `json:"products" validate:"required,dive"`
}

type authorizeResponse struct {
	Authorized    bool   `json:"authorized"`
	ErrorCode     string `json:"error_code,omitempty"`
	TagHolderName string `json:"tag_holder_name,omitempty"`
}

type rollbackResponse struct {
	RolledBack bool   `json:"rolled_back"`
	ErrorCode  string `json:"error_code,omitempty"`
}

// toDomain validates req and converts it for the service.
func (req authorizeRequest) toDomain() (authorizer.AuthorizeRequest, error) {
	err := validate.Struct(req)
	if err != nil {
		return authorizer.AuthorizeRequest{}, describeValidation(err)
	}

	orderID, err := normalizeOrderID(req.OrderUUID)
	if err != nil {
		return authorizer.AuthorizeRequest{}, err
	}

	occurredAt, err := time.Parse(time.RFC3339, req.OccurredAt)
	if err != nil {
		return authorizer.AuthorizeRequest{}, fmt.Errorf("field `occurred_at` should be in the format '%s'", time.RFC3339)
	}

	products := make([]authorizer.Product, 0, len(req.Products))

	for i, p := range req.Products {
		value, err := decimal.NewFromString(strings.TrimSpace(p.UnitValue))
		if err != nil || value.IsNegative() {
			return authorizer.AuthorizeRequest{}, fmt.Errorf("field `products[%d].unit_value` must be a non-negative decimal", i)
		}

		products = append(products, authorizer.Product{
			Code:      p.UPCCode,
			Quantity:  *p.Quantity,
			UnitValue: value,
		})
	}

	return authorizer.AuthorizeRequest{
		OrderID:       orderID,
		TagNumber:     req.TagNumber,
		MachineNumber: req.MachineAssetNumber,
		OccurredAt:    occurredAt,
		Products:      products,
	}, nil
}

// normalizeOrderID returns the canonical lower-case form so the ledger
// matches an order however its id was spelled.
func normalizeOrderID(raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", errors.New("field `order_uuid` should be a UUID")
	}

	return id.String(), nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]

	var msg string

	switch fe.ActualTag() {
	case "required":
		msg = "is required"
	case "datetime":
		msg = fmt.Sprintf("should be in the format '%s'", time.RFC3339)
	case "gte":
		msg = "must be at least " + fe.Param()
	default:
		msg = "is invalid"
	}

	return fmt.Errorf("field `%s` %s", fieldPath(fe), msg)
}

// fieldPath drops the struct name from the namespace: products[0].quantity.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}

	return fe.Field()
}
