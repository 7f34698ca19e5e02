package httppresentation_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/libraryhold/internal/application"
	appinventory "github.com/Zhima-Mochi/libraryhold/internal/application/inventory"
	appreservation "github.com/Zhima-Mochi/libraryhold/internal/application/reservation"
	appstatistics "github.com/Zhima-Mochi/libraryhold/internal/application/statistics"
	domholder "github.com/Zhima-Mochi/libraryhold/internal/domain/holder"
	dominv "github.com/Zhima-Mochi/libraryhold/internal/domain/inventory"
	domres "github.com/Zhima-Mochi/libraryhold/internal/domain/reservation"
	"github.com/Zhima-Mochi/libraryhold/internal/infrastructure/id"
	"github.com/Zhima-Mochi/libraryhold/internal/infrastructure/inventoryclient"
	"github.com/Zhima-Mochi/libraryhold/internal/infrastructure/memory"
	httppresentation "github.com/Zhima-Mochi/libraryhold/internal/presentation/http"
)

type stack struct {
	items     *memory.InventoryRepository
	ledger    *memory.Ledger
	inventory *httptest.Server
	catalog   *httptest.Server
	stats     *appstatistics.Service
}

// newStack runs both routers over HTTP with memory stores behind them.
func newStack(t *testing.T, itemIDs ...int64) *stack {
	t.Helper()
	return newStackWithOptions(t, appreservation.Options{}, itemIDs...)
}

func newStackWithOptions(t *testing.T, opts appreservation.Options, itemIDs ...int64) *stack {
	t.Helper()
	ctx := context.Background()

	items := memory.NewInventoryRepository()
	for _, itemID := range itemIDs {
		require.NoError(t, items.Add(ctx, dominv.Item{ID: itemID, Available: true}))
	}
	invMux := http.NewServeMux()
	httppresentation.NewInventoryHandler(appinventory.NewCoordinator(items, nil, nil), nil, nil, nil).Register(invMux)
	invSrv := httptest.NewServer(invMux)
	t.Cleanup(invSrv.Close)

	client, err := inventoryclient.New(invSrv.URL, invSrv.Client(), nil)
	require.NoError(t, err)

	ledger := memory.NewLedger(id.NewUUIDGenerator())
	holders := memory.NewHolderDirectory(domholder.Holder{ID: 1, Name: "alice"}, domholder.Holder{ID: 2, Name: "bob"})
	coord := appreservation.NewCoordinator(holders, client, ledger, nil, nil, opts)
	stats := appstatistics.NewService()

	catMux := http.NewServeMux()
	httppresentation.NewCatalogHandler(httppresentation.CatalogDeps{
		Reserve: coord.ReserveUseCase(),
		Release: coord.ReleaseUseCase(),
		Queries: coord,
		Stats:   stats,
	}, nil, nil).Register(catMux)
	catSrv := httptest.NewServer(catMux)
	t.Cleanup(catSrv.Close)

	return &stack{items: items, ledger: ledger, inventory: invSrv, catalog: catSrv, stats: stats}
}

type reservationBody struct {
	Success     bool                `json:"success"`
	Error       string              `json:"error"`
	Reservation *domres.Reservation `json:"reservation"`
}

func do(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out bytes.Buffer
	_, err = out.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, out.Bytes()
}

func decode[T any](t *testing.T, raw []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v), string(raw))
	return v
}

func TestCatalog_ReserveCheckRelease(t *testing.T) {
	s := newStack(t, 7)

	resp, raw := do(t, http.MethodPost, s.catalog.URL+"/reservations", map[string]int64{"holder_id": 1, "item_id": 7})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	created := decode[reservationBody](t, raw)
	require.True(t, created.Success)
	require.NotNil(t, created.Reservation)
	assert.Equal(t, int64(7), created.Reservation.ItemID)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	resp, raw = do(t, http.MethodGet, s.catalog.URL+"/items/7/availability", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"item_id":7,"available":false}`, string(raw))

	resp, raw = do(t, http.MethodPost, s.catalog.URL+"/reservations", map[string]int64{"holder_id": 2, "item_id": 7})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, appreservation.CodeItemUnavailable, decode[reservationBody](t, raw).Error)

	resp, raw = do(t, http.MethodDelete, s.catalog.URL+"/reservations/"+created.Reservation.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	released := decode[reservationBody](t, raw)
	require.True(t, released.Success)
	assert.Equal(t, domres.StatusCancelled, released.Reservation.Status)

	item, err := s.items.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, item.Available)

	resp, raw = do(t, http.MethodDelete, s.catalog.URL+"/reservations/"+created.Reservation.ID, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, appreservation.CodeNotFound, decode[reservationBody](t, raw).Error)
}

func TestCatalog_ReserveRejections(t *testing.T) {
	s := newStack(t, 7)

	cases := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{name: "unknown holder", body: map[string]int64{"holder_id": 99, "item_id": 7}, status: http.StatusNotFound, code: appreservation.CodeHolderNotFound},
		{name: "unknown item", body: map[string]int64{"holder_id": 1, "item_id": 404}, status: http.StatusConflict, code: appreservation.CodeItemUnavailable},
		{name: "non-positive ids", body: map[string]int64{"holder_id": 0, "item_id": 7}, status: http.StatusBadRequest},
		{name: "unknown field", body: map[string]any{"holder_id": 1, "item_id": 7, "extra": true}, status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, raw := do(t, http.MethodPost, s.catalog.URL+"/reservations", tc.body)
			require.Equal(t, tc.status, resp.StatusCode, string(raw))
			if tc.code != "" {
				assert.Equal(t, tc.code, decode[reservationBody](t, raw).Error)
			}
		})
	}

	active, err := s.ledger.ListActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestCatalog_ListByHolder(t *testing.T) {
	s := newStack(t, 1, 2)

	for _, itemID := range []int64{1, 2} {
		resp, raw := do(t, http.MethodPost, s.catalog.URL+"/reservations", map[string]int64{"holder_id": 1, "item_id": itemID})
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
	}

	resp, raw := do(t, http.MethodGet, s.catalog.URL+"/reservations?holder_id=1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[struct {
		HolderID     int64                `json:"holder_id"`
		Reservations []domres.Reservation `json:"reservations"`
	}](t, raw)
	assert.Equal(t, int64(1), got.HolderID)
	assert.Len(t, got.Reservations, 2)

	resp, raw = do(t, http.MethodGet, s.catalog.URL+"/reservations?holder_id=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"holder_id":2,"reservations":[]}`, string(raw))

	resp, _ = do(t, http.MethodGet, s.catalog.URL+"/reservations?holder_id=abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCatalog_StatisticsAndHealth(t *testing.T) {
	s := newStack(t)
	s.stats.Record(context.Background(), 3)
	s.stats.Record(context.Background(), 3)

	resp, raw := do(t, http.MethodGet, s.catalog.URL+"/statistics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"items":[{"item_id":3,"reservations":2}]}`, string(raw))

	resp, raw = do(t, http.MethodGet, s.catalog.URL+"/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(raw))
}

func TestCatalog_InventoryOutageMapsToInternalError(t *testing.T) {
	s := newStack(t, 7)
	s.inventory.Close()

	resp, raw := do(t, http.MethodPost, s.catalog.URL+"/reservations", map[string]int64{"holder_id": 1, "item_id": 7})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, appreservation.CodeInternalError, decode[reservationBody](t, raw).Error)

	resp, raw = do(t, http.MethodGet, s.catalog.URL+"/items/7/availability", nil)
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, appreservation.CodeInventoryError, decode[reservationBody](t, raw).Error)
}

func TestCatalog_OrphanedReservationIsInternal(t *testing.T) {
	orphaned := application.UseCaseFunc[appreservation.ReserveCommand, *domres.Reservation](
		func(context.Context, appreservation.ReserveCommand) (*domres.Reservation, error) {
			return nil, errors.Join(appreservation.ErrInternal, appreservation.ErrOrphanedReservation)
		},
	)
	mux := http.NewServeMux()
	httppresentation.NewCatalogHandler(httppresentation.CatalogDeps{Reserve: orphaned}, nil, nil).Register(mux)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/reservations", bytes.NewBufferString(`{"holder_id":1,"item_id":2}`))
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"internal_error"}`, rec.Body.String())
}

func TestInventory_Routes(t *testing.T) {
	s := newStack(t, 5)

	resp, raw := do(t, http.MethodPost, s.inventory.URL+"/inventory/items/5/reserve", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true}`, string(raw))

	resp, raw = do(t, http.MethodPost, s.inventory.URL+"/inventory/items/5/reserve", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":false,"reason":"already_reserved"}`, string(raw))

	resp, raw = do(t, http.MethodPost, s.inventory.URL+"/inventory/items/404/reserve", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":false,"reason":"not_found"}`, string(raw))

	resp, raw = do(t, http.MethodPost, s.inventory.URL+"/inventory/items/5/release", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true}`, string(raw))

	resp, raw = do(t, http.MethodGet, s.inventory.URL+"/inventory/items/5/availability", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"item_id":5,"available":true}`, string(raw))

	resp, _ = do(t, http.MethodGet, s.inventory.URL+"/inventory/items/abc/availability", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, http.MethodGet, s.inventory.URL+"/inventory/items/5/reserve", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCatalog_UnknownItemIsUnavailable(t *testing.T) {
	for _, skip := range []bool{false, true} {
		s := newStackWithOptions(t, appreservation.Options{SkipPrecheck: skip}, 7)

		resp, raw := do(t, http.MethodPost, s.catalog.URL+"/reservations", map[string]int64{"holder_id": 1, "item_id": 999})
		assert.Equal(t, http.StatusConflict, resp.StatusCode, "skip_precheck=%v", skip)
		body := decode[reservationBody](t, raw)
		assert.False(t, body.Success)
		assert.Equal(t, "item_unavailable", body.Error, "skip_precheck=%v", skip)
	}
}
