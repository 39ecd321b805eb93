package registry

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

	"roomledger/internal/middleware"
)

// stubService scripts registry responses for handler tests and records which
// mutations got through.
type stubService struct {
	item    *Item
	getErr  error
	edited  bool
	deleted bool
}

func (s *stubService) AddItem(ctx context.Context, groupID uuid.UUID, name string, amount int, addedBy uuid.UUID) (*Item, error) {
	return nil, nil
}

func (s *stubService) EditItem(ctx context.Context, itemID uuid.UUID, newName string, newAmount int) error {
	s.edited = true
	return nil
}

func (s *stubService) DeleteItem(ctx context.Context, itemID uuid.UUID) error {
	s.deleted = true
	return nil
}

func (s *stubService) GetItem(ctx context.Context, itemID uuid.UUID) (*Item, error) {
	return s.item, s.getErr
}

func (s *stubService) ListActiveItems(ctx context.Context, groupID uuid.UUID, includeBasket bool) ([]*Item, error) {
	return nil, nil
}

func (s *stubService) ListSelectedItems(ctx context.Context, groupID uuid.UUID) ([]*Item, error) {
	return nil, nil
}

func (s *stubService) SetSelected(ctx context.Context, itemID uuid.UUID, selected bool) error {
	return nil
}

func (s *stubService) MoveToBasket(ctx context.Context, itemID, buyerID uuid.UUID) error {
	return nil
}

func (s *stubService) ReturnToList(ctx context.Context, itemID uuid.UUID) error {
	return nil
}

func (s *stubService) InvalidateGroup(groupID uuid.UUID) {}

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

// Editing or deleting by item ID must still respect the token's group: the
// target is looked up and refused when it belongs elsewhere.
func TestEditItemRejectsForeignGroup(t *testing.T) {
	itemID := uuid.New()
	svc := &stubService{item: &Item{ID: itemID, GroupID: uuid.New()}}

	rec := serveAs(t, svc, uuid.New(), http.MethodPut,
		"/items/"+itemID.String(), `{"name":"milk","amount":1}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, svc.edited, "edit must not reach the service")
}

func TestDeleteItemRejectsForeignGroup(t *testing.T) {
	itemID := uuid.New()
	svc := &stubService{item: &Item{ID: itemID, GroupID: uuid.New()}}

	rec := serveAs(t, svc, uuid.New(), http.MethodDelete, "/items/"+itemID.String(), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, svc.deleted, "delete must not reach the service")
}

func TestEditItemAllowsOwnGroup(t *testing.T) {
	itemID := uuid.New()
	groupID := uuid.New()
	svc := &stubService{item: &Item{ID: itemID, GroupID: groupID}}

	rec := serveAs(t, svc, groupID, http.MethodPut,
		"/items/"+itemID.String(), `{"name":"milk","amount":1}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.edited)
}

func TestDeleteMissingItemStaysIdempotent(t *testing.T) {
	svc := &stubService{getErr: ErrNotFound}

	rec := serveAs(t, svc, uuid.New(), http.MethodDelete, "/items/"+uuid.New().String(), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
