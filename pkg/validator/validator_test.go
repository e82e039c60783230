package validator

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type addItemRequest struct {
	MenuItemID string `json:"menu_item_id" validate:"required"`
	Name       string `json:"name" validate:"required,max=20"`
	Price      int64  `json:"price" validate:"gte=0"`
	Quantity   int    `json:"quantity" validate:"gte=1,lte=99"`
}

type methodRequest struct {
	Method string `json:"method" validate:"required,oneof=CASH CARD APPLE_PAY GOOGLE_PAY"`
}

type tenantRequest struct {
	Tenant string `json:"tenant" validate:"required,slug"`
}

type attemptRequest struct {
	AttemptID string `json:"attempt_id" validate:"required,uuid"`
}

func validAddItem() addItemRequest {
	return addItemRequest{MenuItemID: "m-1", Name: "Burger", Price: 1200, Quantity: 2}
}

func TestValidate_Success(t *testing.T) {
	assert.NoError(t, Validate(validAddItem()))
}

func TestValidate_MissingRequired(t *testing.T) {
	req := validAddItem()
	req.MenuItemID = ""

	err := Validate(req)
	require.Error(t, err)

	var valErr *ValidationError
	require.True(t, errors.As(err, &valErr))
	assert.Equal(t, "is required", valErr.Fields()["menu_item_id"])
}

func TestValidate_UsesJSONFieldNames(t *testing.T) {
	req := validAddItem()
	req.Quantity = 0

	var valErr *ValidationError
	require.True(t, errors.As(Validate(req), &valErr))
	_, ok := valErr.Fields()["quantity"]
	assert.True(t, ok)
	_, ok = valErr.Fields()["Quantity"]
	assert.False(t, ok)
}

func TestValidate_OutOfRange(t *testing.T) {
	req := validAddItem()
	req.Quantity = 100

	var valErr *ValidationError
	require.True(t, errors.As(Validate(req), &valErr))
	assert.Equal(t, "must be less than or equal to 99", valErr.Fields()["quantity"])
}

func TestValidate_MultipleErrors(t *testing.T) {
	req := addItemRequest{Price: -1}

	var valErr *ValidationError
	require.True(t, errors.As(Validate(req), &valErr))
	assert.Len(t, valErr.Fields(), 4)
}

func TestValidationError_ErrorString(t *testing.T) {
	req := validAddItem()
	req.Name = ""

	err := Validate(req)
	require.Error(t, err)
	assert.Equal(t, "field 'name' is required", err.Error())
}

func TestValidate_OneOf(t *testing.T) {
	assert.NoError(t, Validate(methodRequest{Method: "APPLE_PAY"}))

	var valErr *ValidationError
	require.True(t, errors.As(Validate(methodRequest{Method: "BITCOIN"}), &valErr))
	assert.Contains(t, valErr.Fields()["method"], "must be one of")
}

func TestValidate_Slug(t *testing.T) {
	assert.NoError(t, Validate(tenantRequest{Tenant: "pizza-place-2"}))

	for _, bad := range []string{"Pizza", "pizza place", "-pizza", "pizza--place"} {
		var valErr *ValidationError
		require.True(t, errors.As(Validate(tenantRequest{Tenant: bad}), &valErr), bad)
		assert.Equal(t, "must be a lowercase slug", valErr.Fields()["tenant"])
	}
}

func TestValidate_UUID(t *testing.T) {
	assert.NoError(t, Validate(attemptRequest{AttemptID: "550e8400-e29b-41d4-a716-446655440000"}))

	var valErr *ValidationError
	require.True(t, errors.As(Validate(attemptRequest{AttemptID: "nope"}), &valErr))
	assert.Equal(t, "must be a valid UUID", valErr.Fields()["attempt_id"])
}

func TestVar(t *testing.T) {
	assert.NoError(t, Var(3, "gt=0"))
	assert.Error(t, Var(0, "gt=0"))
}

func TestDecodeAndValidate_Success(t *testing.T) {
	body := `{"menu_item_id":"m-1","name":"Fries","price":450,"quantity":1}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	var dst addItemRequest
	require.NoError(t, DecodeAndValidate(r, &dst))
	assert.Equal(t, int64(450), dst.Price)
}

func TestDecodeAndValidate_InvalidJSON(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{bad`))

	var dst addItemRequest
	err := DecodeAndValidate(r, &dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}

func TestDecodeAndValidate_UnknownField(t *testing.T) {
	body := `{"menu_item_id":"m-1","name":"Fries","price":450,"quantity":1,"discount":5}`
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	var dst addItemRequest
	err := DecodeAndValidate(r, &dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}

func TestDecodeAndValidate_ValidationFails(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"method":"WIRE"}`))

	var dst methodRequest
	err := DecodeAndValidate(r, &dst)

	var valErr *ValidationError
	assert.True(t, errors.As(err, &valErr))
}
