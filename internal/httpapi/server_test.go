package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/clerks"
	"github.com/vladislavdragonenkov/storefront/internal/service/orderstatus"
	"github.com/vladislavdragonenkov/storefront/internal/storage/images"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type testAPI struct {
	server *httptest.Server
	orders *memory.OrderRepository
	images *images.MemoryStorage
}

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return log.NewEntry(logger)
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	logger := quietLogger()
	orders := memory.NewOrderRepository()
	storage := images.NewMemoryStorage("https://cdn.test")

	healthHandler := health.NewHandler("test")
	healthHandler.RegisterChecker("store", health.NewSimpleChecker("store", func(context.Context) error { return nil }))

	router := NewRouter(Config{
		Catalog: catalog.New(memory.NewShopRepository(), storage, catalog.WithLogger(logger)),
		Clerks:  clerks.New(memory.NewClerkRepository(), logger),
		Orders: orderstatus.New(orders, memory.NewTimelineRepository(), memory.NewOutboxRepository(),
			orderstatus.WithLogger(logger)),
		Health: healthHandler,
		Logger: logger,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testAPI{server: server, orders: orders, images: storage}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (a *testAPI) seedOrder(t *testing.T, id, shopID string, status domain.OrderStatus) {
	t.Helper()
	err := a.orders.Create(context.Background(), domain.Order{
		ID:           id,
		ShopID:       shopID,
		Status:       status,
		BuyerName:    "Alice",
		PurchaseTime: time.Now().UTC(),
		Products:     []domain.Product{{Name: "Latte"}},
	})
	if err != nil {
		t.Fatalf("seed order %s: %v", id, err)
	}
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode %s: %v", string(data), err)
	}
	return out
}

func createShop(t *testing.T, api *testAPI) shopDTO {
	t.Helper()
	code, body := api.do(t, http.MethodPost, "/api/v1/shops", shopDTO{
		Name:    "Corner Cafe",
		Address: "1 Main St",
		Menu:    []menuItemDTO{{Name: "Latte", PriceMinor: 350, InStock: true}},
	})
	require.Equal(t, http.StatusCreated, code, string(body))
	return decode[shopDTO](t, body)
}

func TestShopLifecycle(t *testing.T) {
	api := newTestAPI(t)

	shop := createShop(t, api)
	require.NotEmpty(t, shop.ID)
	require.Len(t, shop.Menu, 1)
	require.NotEmpty(t, shop.Menu[0].ID)

	code, body := api.do(t, http.MethodGet, "/api/v1/shops/"+shop.ID, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Corner Cafe", decode[shopDTO](t, body).Name)

	code, body = api.do(t, http.MethodPatch, "/api/v1/shops/"+shop.ID, shopDTO{Description: "Best coffee"})
	require.Equal(t, http.StatusOK, code, string(body))
	patched := decode[shopDTO](t, body)
	require.Equal(t, "Best coffee", patched.Description)
	require.Equal(t, "Corner Cafe", patched.Name)
	require.Len(t, patched.Menu, 1, "patch without menu keeps it")
}

func TestCreateShopValidation(t *testing.T) {
	api := newTestAPI(t)

	code, body := api.do(t, http.MethodPost, "/api/v1/shops", shopDTO{Name: "No address"})
	require.Equal(t, http.StatusBadRequest, code)
	require.Contains(t, decode[errorResponse](t, body).Error, "address")

	req, err := http.NewRequest(http.MethodPost, api.server.URL+"/api/v1/shops", bytes.NewReader([]byte(`{"name":`)))
	require.NoError(t, err)
	resp, err := api.server.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateShopDuplicateIDConflicts(t *testing.T) {
	api := newTestAPI(t)
	shop := createShop(t, api)

	code, body := api.do(t, http.MethodPost, "/api/v1/shops", shopDTO{ID: shop.ID, Name: "Other", Address: "2 Side St"})
	require.Equal(t, http.StatusConflict, code, string(body))

	code, body = api.do(t, http.MethodGet, "/api/v1/shops/"+shop.ID, nil)
	require.Equal(t, http.StatusOK, code)
	stored := decode[shopDTO](t, body)
	require.Equal(t, "Corner Cafe", stored.Name)
	require.Len(t, stored.Menu, 1)
}

func TestMenuEndpoints(t *testing.T) {
	api := newTestAPI(t)
	shop := createShop(t, api)
	base := "/api/v1/shops/" + shop.ID + "/menu"

	code, body := api.do(t, http.MethodPost, base, menuItemDTO{Name: "Tea", PriceMinor: 200})
	require.Equal(t, http.StatusCreated, code, string(body))
	require.Len(t, decode[shopDTO](t, body).Menu, 2)

	code, body = api.do(t, http.MethodPut, base+"/1", menuItemDTO{Name: "Green tea", PriceMinor: 250})
	require.Equal(t, http.StatusOK, code, string(body))
	updated := decode[shopDTO](t, body)
	require.Equal(t, "Green tea", updated.Menu[1].Name)

	code, _ = api.do(t, http.MethodPut, base+"/7", menuItemDTO{Name: "Ghost", PriceMinor: 1})
	require.Equal(t, http.StatusBadRequest, code)

	code, body = api.do(t, http.MethodDelete, base+"/0", nil)
	require.Equal(t, http.StatusOK, code, string(body))
	remaining := decode[shopDTO](t, body).Menu
	require.Len(t, remaining, 1)
	require.Equal(t, "Green tea", remaining[0].Name)

	code, _ = api.do(t, http.MethodPost, "/api/v1/shops/missing/menu", menuItemDTO{Name: "Tea"})
	require.Equal(t, http.StatusNotFound, code)
}

func TestUploadImage(t *testing.T) {
	api := newTestAPI(t)
	shop := createShop(t, api)

	upload := func(field, fileName string, data []byte) (int, []byte) {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		part, err := writer.CreateFormFile(field, fileName)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
		require.NoError(t, writer.Close())

		req, err := http.NewRequest(http.MethodPost, api.server.URL+"/api/v1/shops/"+shop.ID+"/images", &buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		resp, err := api.server.Client().Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, body
	}

	code, body := upload("image", "latte.png", []byte("png-bytes"))
	require.Equal(t, http.StatusCreated, code, string(body))
	key := "shop/" + shop.ID + "/menu/latte.png"
	require.Equal(t, "https://cdn.test/"+key, decode[imageDTO](t, body).URL)
	obj, ok := api.images.Object(key)
	require.True(t, ok)
	require.Equal(t, []byte("png-bytes"), obj.Data)

	code, _ = upload("file", "latte.png", []byte("png-bytes"))
	require.Equal(t, http.StatusBadRequest, code, "wrong form field")
}

func TestOrderEndpoints(t *testing.T) {
	api := newTestAPI(t)
	api.seedOrder(t, "A", "shop-1", domain.OrderStatusPending)
	api.seedOrder(t, "B", "shop-1", domain.OrderStatusComplete)
	api.seedOrder(t, "C", "shop-2", domain.OrderStatusPending)

	code, body := api.do(t, http.MethodGet, "/api/v1/shops/shop-1/orders", nil)
	require.Equal(t, http.StatusOK, code)
	list := decode[ordersDTO](t, body)
	require.Len(t, list.Orders, 2)
	for _, order := range list.Orders {
		require.Equal(t, "shop-1", order.ShopID)
	}

	code, body = api.do(t, http.MethodGet, "/api/v1/shops/empty/orders", nil)
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, decode[ordersDTO](t, body).Orders)

	code, body = api.do(t, http.MethodPut, "/api/v1/orders/A/status", changeStatusRequest{Status: "in-progress"})
	require.Equal(t, http.StatusOK, code, string(body))
	require.Equal(t, "in-progress", decode[orderDTO](t, body).Status)

	code, body = api.do(t, http.MethodGet, "/api/v1/orders/A", nil)
	require.Equal(t, http.StatusOK, code)
	details := decode[orderDetailsDTO](t, body)
	require.Equal(t, "in-progress", details.Order.Status)
	require.Len(t, details.Timeline, 1)
}

func TestChangeStatusErrors(t *testing.T) {
	api := newTestAPI(t)
	api.seedOrder(t, "B", "shop-1", domain.OrderStatusComplete)

	cases := []struct {
		name    string
		orderID string
		status  string
		want    int
	}{
		{name: "backwards", orderID: "B", status: "pending", want: http.StatusConflict},
		{name: "same status", orderID: "B", status: "complete", want: http.StatusConflict},
		{name: "unknown status", orderID: "B", status: "teleported", want: http.StatusBadRequest},
		{name: "missing order", orderID: "missing-id", status: "complete", want: http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := api.do(t, http.MethodPut, "/api/v1/orders/"+tc.orderID+"/status", changeStatusRequest{Status: tc.status})
			require.Equal(t, tc.want, code, string(body))
			require.NotEmpty(t, decode[errorResponse](t, body).Error)
		})
	}

	_, err := api.orders.Get(context.Background(), "missing-id")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestClerkEndpoints(t *testing.T) {
	api := newTestAPI(t)

	code, body := api.do(t, http.MethodPost, "/api/v1/clerks/sign-in", clerkDTO{ID: "c-1", Email: "c@shop.test", Name: "Bob"})
	require.Equal(t, http.StatusOK, code, string(body))
	require.Equal(t, "pending", decode[clerkDTO](t, body).Status)

	code, body = api.do(t, http.MethodGet, "/api/v1/clerks/c-1", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Bob", decode[clerkDTO](t, body).Name)

	code, _ = api.do(t, http.MethodGet, "/api/v1/clerks/nobody", nil)
	require.Equal(t, http.StatusNotFound, code)

	code, _ = api.do(t, http.MethodPost, "/api/v1/clerks/sign-in", clerkDTO{ID: "c-2"})
	require.Equal(t, http.StatusBadRequest, code)
}

func TestServiceEndpoints(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/livez", "/readyz", "/healthz", "/metrics"} {
		code, _ := api.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, code, path)
	}
}

func TestStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{err: nil, want: http.StatusOK},
		{err: domain.ErrShopIDRequired, want: http.StatusBadRequest},
		{err: fmt.Errorf("load: %w", domain.ErrOrderNotFound), want: http.StatusNotFound},
		{err: domain.ErrInvalidTransition, want: http.StatusConflict},
		{err: domain.ErrOrderAlreadyExists, want: http.StatusConflict},
		{err: fmt.Errorf("%w: s-1", domain.ErrShopAlreadyExists), want: http.StatusConflict},
		{err: domain.Transient(errors.New("db down")), want: http.StatusServiceUnavailable},
		{err: context.DeadlineExceeded, want: http.StatusServiceUnavailable},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := StatusCode(tc.err); got != tc.want {
			t.Fatalf("StatusCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
