package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

type lineRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=1,max=3"`
}

type cartRequest struct {
	Currency string        `json:"currency" validate:"omitempty,len=3"`
	Items    []lineRequest `json:"items" validate:"required,min=1,dive"`
}

func decode(t *testing.T, body string) error {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/checkout/session", strings.NewReader(body))
	var dest cartRequest
	return DecodeJSONBody(httptest.NewRecorder(), req, &dest)
}

func TestDecodeJSONBodyReportsJSONPaths(t *testing.T) {
	err := decode(t, `{"currency":"RUPEE","items":[{"productId":"p1","quantity":9}]}`)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Equal(t, map[string]string{
		"currency":          "must have length 3",
		"items[0].quantity": "must be at most 3",
	}, typed.Details())
}

func TestDecodeJSONBodyRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":          ``,
		"syntax":         `{"items":`,
		"unknown field":  `{"items":[{"productId":"p1","quantity":1}],"coupon":"x"}`,
		"wrong type":     `{"items":"p1"}`,
		"trailing value": `{"items":[{"productId":"p1","quantity":1}]} {}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			assert.True(t, pkgerrors.IsCode(decode(t, body), pkgerrors.CodeValidation))
		})
	}
}

func TestDecodeJSONBodyEnforcesSizeLimit(t *testing.T) {
	body := `{"currency":"` + strings.Repeat("x", MaxBodyBytes) + `"}`
	err := decode(t, body)
	require.Error(t, err)
	assert.Equal(t, "request body too large", pkgerrors.As(err).Message())
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	assert.NoError(t, decode(t, `{"currency":"INR","items":[{"productId":"p1","quantity":2}]}`))
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/orders?limit=30&bad=x&big=500", nil)

	v, err := QueryInt(req, "limit", 20, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 30, v)

	v, err = QueryInt(req, "missing", 20, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 20, v)

	_, err = QueryInt(req, "bad", 20, 1, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = QueryInt(req, "big", 20, 1, 100)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestQueryStringCleansInput(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/orders?q=%20%E0%A4%95%E0%A4%BE%E0%A4%AE%07abc%20", nil)
	assert.Equal(t, "काम", QueryString(req, "q", 3))
	assert.Equal(t, "कामabc", QueryString(req, "q", 0))
}
