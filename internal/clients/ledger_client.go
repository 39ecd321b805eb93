package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"roomledger/internal/basket"
	"roomledger/internal/registry"
)

// LedgerClient drives the ledger service's HTTP API. The chaos tool uses it
// to exercise the list, basket, and settlement surfaces from outside.
type LedgerClient struct {
	baseURL string
	token   string
}

func NewLedgerClient(baseURL, token string) *LedgerClient {
	return &LedgerClient{baseURL: baseURL, token: token}
}

func (c *LedgerClient) do(ctx context.Context, method, path string, body, out any) error {
	var buf *bytes.Buffer
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewBuffer(encoded)
	} else {
		buf = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *LedgerClient) AddItem(ctx context.Context, groupID uuid.UUID, name string, amount int) (*registry.Item, error) {
	req := struct {
		Name   string `json:"name"`
		Amount int    `json:"amount"`
	}{Name: name, Amount: amount}

	item := &registry.Item{}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/groups/%s/items", groupID), req, item)
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (c *LedgerClient) ListItems(ctx context.Context, groupID uuid.UUID, includeBasket bool) ([]*registry.Item, error) {
	path := fmt.Sprintf("/groups/%s/items", groupID)
	if includeBasket {
		path += "?include=basket"
	}

	var items []*registry.Item
	if err := c.do(ctx, http.MethodGet, path, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *LedgerClient) SetSelection(ctx context.Context, itemID uuid.UUID, selected bool) error {
	req := struct {
		Selected bool `json:"selected"`
	}{Selected: selected}
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/items/%s/selection", itemID), req, nil)
}

func (c *LedgerClient) Checkout(ctx context.Context, groupID uuid.UUID) (*basket.CheckoutResult, error) {
	result := &basket.CheckoutResult{}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/groups/%s/checkout", groupID), nil, result)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *LedgerClient) FinalizeCheckout(ctx context.Context, groupID uuid.UUID) (*basket.PurchasedRecord, error) {
	record := &basket.PurchasedRecord{}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/groups/%s/checkout/finalize", groupID), nil, record)
	if err != nil {
		return nil, err
	}
	return record, nil
}
