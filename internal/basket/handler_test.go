package basket

import (
	"context"
	"encoding/json"
	"io"
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
	"roomledger/internal/registry"
)

// stubService scripts the engine's responses for handler tests.
type stubService struct {
	checkoutResult *CheckoutResult
	checkoutErr    error
	finalizeErr    error
	selectionErr   error
	returnErr      error
}

func (s *stubService) MarkSelected(ctx context.Context, groupID, itemID uuid.UUID, selected bool) error {
	return s.selectionErr
}

func (s *stubService) Checkout(ctx context.Context, groupID, buyerID uuid.UUID) (*CheckoutResult, error) {
	return s.checkoutResult, s.checkoutErr
}

func (s *stubService) ReturnToList(ctx context.Context, groupID, itemID uuid.UUID) error {
	return s.returnErr
}

func (s *stubService) FinalizeCheckout(ctx context.Context, groupID, buyerID uuid.UUID) (*PurchasedRecord, error) {
	return nil, s.finalizeErr
}

func (s *stubService) ReturnFromRecord(ctx context.Context, groupID, recordID, itemID uuid.UUID) (*registry.Item, error) {
	return nil, s.returnErr
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

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCheckoutHandlerReportsPartialTransition(t *testing.T) {
	groupID := uuid.New()
	moved := uuid.New()
	failed := uuid.New()
	svc := &stubService{
		checkoutResult: &CheckoutResult{
			Moved:  []uuid.UUID{moved},
			Failed: []TransitionFailure{{ItemID: failed, Reason: "conflict"}},
		},
		checkoutErr: &PartialTransitionError{
			Moved:  []uuid.UUID{moved},
			Failed: []TransitionFailure{{ItemID: failed, Reason: "conflict"}},
		},
	}

	rec := serveAs(t, svc, groupID, http.MethodPost, "/groups/"+groupID.String()+"/checkout", "")
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var body struct {
		Error  string              `json:"error"`
		Moved  []uuid.UUID         `json:"moved"`
		Failed []TransitionFailure `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []uuid.UUID{moved}, body.Moved)
	require.Len(t, body.Failed, 1)
	assert.Equal(t, failed, body.Failed[0].ItemID)
	assert.Equal(t, "conflict", body.Failed[0].Reason)
}

func TestFinalizeHandlerRejectsEmptyBasket(t *testing.T) {
	groupID := uuid.New()
	svc := &stubService{finalizeErr: ErrEmptyBasket}

	rec := serveAs(t, svc, groupID, http.MethodPost, "/groups/"+groupID.String()+"/checkout/finalize", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCheckoutHandlerEnforcesGroupMatch(t *testing.T) {
	svc := &stubService{checkoutResult: &CheckoutResult{}}

	// The token's group does not match the path group.
	rec := serveAs(t, svc, uuid.New(), http.MethodPost, "/groups/"+uuid.New().String()+"/checkout", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// Item- and record-scoped routes must refuse targets outside the caller's
// token group, even though the group never appears in the path.
func TestSelectionHandlerRejectsForeignItem(t *testing.T) {
	svc := &stubService{selectionErr: ErrForeignGroup}

	rec := serveAs(t, svc, uuid.New(), http.MethodPut,
		"/items/"+uuid.New().String()+"/selection", `{"selected":true}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReturnHandlersRejectForeignTargets(t *testing.T) {
	svc := &stubService{returnErr: ErrForeignGroup}

	rec := serveAs(t, svc, uuid.New(), http.MethodPost,
		"/items/"+uuid.New().String()+"/return", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = serveAs(t, svc, uuid.New(), http.MethodPost,
		"/records/"+uuid.New().String()+"/items/"+uuid.New().String()+"/return", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPartialTransitionErrorMessage(t *testing.T) {
	err := &PartialTransitionError{
		Moved:  []uuid.UUID{uuid.New(), uuid.New()},
		Failed: []TransitionFailure{{ItemID: uuid.New(), Reason: "conflict"}},
	}
	assert.Equal(t, "partial transition: 2 item(s) moved, 1 failed", err.Error())
}
