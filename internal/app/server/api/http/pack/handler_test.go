package pack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"shopnav/internal/domain/pack"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) GetDelta(ctx context.Context, storeID int64, since string) (*pack.Delta, error) {
	args := m.Called(ctx, storeID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pack.Delta), args.Error(1)
}

func setup(t *testing.T, svc pack.Servicer) humatest.TestAPI {
	t.Helper()
	_, api := humatest.New(t)
	NewHandler(svc, slog.Default(), huma.Middlewares{}).SetupRoutes(api)
	return api
}

func TestHandler_GetPack(t *testing.T) {
	zone := int64(3)
	conf := 0.7
	delta := pack.NewDelta()
	delta.Version = "v1.1.10.4"
	delta.ProductLocations.Upserts = append(delta.ProductLocations.Upserts,
		pack.ProductLocation{ProductID: 5, StoreID: 1, ZoneID: &zone, Confidence: &conf})
	delta.Products.Deletes = append(delta.Products.Deletes, 9)

	svc := new(MockService)
	svc.On("GetDelta", mock.Anything, int64(1), "v1.1.8.2").Return(delta, nil)
	api := setup(t, svc)

	resp := api.Get("/pack?storeId=1&since=v1.1.8.2")
	require.Equal(t, http.StatusOK, resp.Code)

	var got pack.Delta
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	assert.Equal(t, "v1.1.10.4", got.Version)
	assert.Equal(t, []int64{9}, got.Products.Deletes)
	require.Len(t, got.ProductLocations.Upserts, 1)
	assert.Equal(t, int64(3), *got.ProductLocations.Upserts[0].ZoneID)
	assert.Empty(t, got.Stores.Upserts)

	svc.AssertExpectations(t)
}

func TestHandler_GetPack_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "unknown store", err: pack.ErrStoreNotFound, wantStatus: http.StatusNotFound},
		{name: "invalid store", err: pack.ErrInvalidStoreID, wantStatus: http.StatusUnprocessableEntity},
		{name: "storage failure", err: errors.New("connection refused"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			svc.On("GetDelta", mock.Anything, int64(7), "").Return(nil, tt.err)
			api := setup(t, svc)

			resp := api.Get("/pack?storeId=7")
			assert.Equal(t, tt.wantStatus, resp.Code)
			assert.NotContains(t, resp.Body.String(), "connection refused")
		})
	}
}

func TestHandler_GetPack_Validation(t *testing.T) {
	svc := new(MockService)
	api := setup(t, svc)

	assert.Equal(t, http.StatusUnprocessableEntity, api.Get("/pack").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, api.Get("/pack?storeId=0").Code)
	assert.Equal(t, http.StatusUnprocessableEntity, api.Get("/pack?storeId=abc").Code)

	svc.AssertNotCalled(t, "GetDelta", mock.Anything, mock.Anything, mock.Anything)
}
