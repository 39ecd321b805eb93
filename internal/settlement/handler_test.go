package settlement

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomledger/internal/basket"
	"roomledger/internal/middleware"
)

// stubService scripts settlement responses for handler tests.
type stubService struct {
	record   *basket.PurchasedRecord
	getErr   error
	repriced bool
}

func (s *stubService) ListRecords(ctx context.Context, groupID uuid.UUID) ([]*RecordSummary, error) {
	return nil, nil
}

func (s *stubService) GetRecord(ctx context.Context, recordID uuid.UUID) (*basket.PurchasedRecord, error) {
	return s.record, s.getErr
}

func (s *stubService) UpdateRecordPrice(ctx context.Context, recordID uuid.UUID, newPrice float64) error {
	s.repriced = true
	return nil
}

func (s *stubService) Settlement(ctx context.Context, groupID uuid.UUID) (*Report, error) {
	return nil, nil
}

func (s *stubService) ClearSettlement(ctx context.Context, groupID uuid.UUID) error {
	return nil
}

func serveAs(t *testing.T, svc Service, groupID uuid.UUID, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	router := chi.NewRouter()
	router.Use(middleware.Authenticate)
	NewHandler(svc).Mount(router)

	claims := middleware.Claims{
		MemberID: uuid.New().String(),
		GroupID:  groupID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(middleware.Secret())
	require.NoError(t, err)

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// Re-pricing goes through the record's owning group, not just the record ID.
func TestUpdatePriceRejectsForeignRecord(t *testing.T) {
	recordID := uuid.New()
	svc := &stubService{record: &basket.PurchasedRecord{ID: recordID, GroupID: uuid.New()}}

	rec := serveAs(t, svc, uuid.New(), http.MethodPut,
		"/records/"+recordID.String()+"/price", `{"total_price":12.5}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, svc.repriced, "re-price must not reach the service")
}

func TestUpdatePriceAllowsOwnGroup(t *testing.T) {
	recordID := uuid.New()
	groupID := uuid.New()
	svc := &stubService{record: &basket.PurchasedRecord{ID: recordID, GroupID: groupID}}

	rec := serveAs(t, svc, groupID, http.MethodPut,
		"/records/"+recordID.String()+"/price", `{"total_price":12.5}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.repriced)
}
