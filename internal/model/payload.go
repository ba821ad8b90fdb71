package model

import (
	"fmt"
	"strconv"
	"strings"
)

// One schema per action variant, validated uniformly before dispatch so the
// dispatcher's switch only ever sees well-formed payloads.

type DepositPayload struct {
	RecipientAddress string
	Amount           float64
	TransactionHash  string
}

type DepositAddressesPayload struct {
	Chain string
}

type TransferPayload struct {
	RecipientAddress string
	Amount           float64
	Chain            string
}

type CreateOrderPayload struct {
	OrderType string // market or limit
	Amount    float64
	FromToken string
	ToToken   string
	Price     float64
}

type OrderRefPayload struct {
	OrderID string
}

func ParseDepositPayload(payload map[string]string) (*DepositPayload, error) {
	address, err := requireString(payload, "recipientAddress")
	if err != nil {
		return nil, err
	}
	amount, err := requirePositiveNumber(payload, "amount")
	if err != nil {
		return nil, err
	}
	hash, err := requireString(payload, "transactionHash")
	if err != nil {
		return nil, err
	}
	return &DepositPayload{RecipientAddress: address, Amount: amount, TransactionHash: hash}, nil
}

func ParseDepositAddressesPayload(payload map[string]string) (*DepositAddressesPayload, error) {
	chain, err := requireString(payload, "chain")
	if err != nil {
		return nil, err
	}
	return &DepositAddressesPayload{Chain: chain}, nil
}

func ParseTransferPayload(payload map[string]string) (*TransferPayload, error) {
	address, err := requireString(payload, "recipientAddress")
	if err != nil {
		return nil, err
	}
	amount, err := requirePositiveNumber(payload, "amount")
	if err != nil {
		return nil, err
	}
	chain, err := requireString(payload, "chain")
	if err != nil {
		return nil, err
	}
	return &TransferPayload{RecipientAddress: address, Amount: amount, Chain: chain}, nil
}

func ParseCreateOrderPayload(payload map[string]string) (*CreateOrderPayload, error) {
	orderType := strings.ToLower(strings.TrimSpace(payload["orderType"]))
	switch orderType {
	case "":
		orderType = "limit"
	case "market", "limit":
	default:
		return nil, fmt.Errorf("orderType must be market or limit, got %q", payload["orderType"])
	}
	amount, err := requirePositiveNumber(payload, "amount")
	if err != nil {
		return nil, err
	}
	from, err := requireString(payload, "fromToken")
	if err != nil {
		return nil, err
	}
	to, err := requireString(payload, "toToken")
	if err != nil {
		return nil, err
	}

	// Market orders may omit the price; the dispatcher derives one from a
	// VWAP walk of the live order book. Limit orders must carry one.
	var price float64
	if raw, ok := payload["price"]; ok && strings.TrimSpace(raw) != "" {
		price, err = requirePositiveNumber(payload, "price")
		if err != nil {
			return nil, err
		}
	} else if orderType == "limit" {
		return nil, fmt.Errorf("price is required for limit orders")
	}

	return &CreateOrderPayload{
		OrderType: orderType,
		Amount:    amount,
		FromToken: from,
		ToToken:   to,
		Price:     price,
	}, nil
}

func ParseOrderRefPayload(payload map[string]string) (*OrderRefPayload, error) {
	orderID, err := requireString(payload, "orderId")
	if err != nil {
		return nil, err
	}
	return &OrderRefPayload{OrderID: orderID}, nil
}

func requireString(payload map[string]string, key string) (string, error) {
	value := strings.TrimSpace(payload[key])
	if value == "" {
		return "", fmt.Errorf("payload field %s is required", key)
	}
	return value, nil
}

func requirePositiveNumber(payload map[string]string, key string) (float64, error) {
	raw, ok := payload[key]
	if !ok || strings.TrimSpace(raw) == "" {
		return 0, fmt.Errorf("payload field %s is required", key)
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("payload field %s must be a number, got %q", key, raw)
	}
	if value <= 0 {
		return 0, fmt.Errorf("payload field %s must be positive, got %v", key, value)
	}
	return value, nil
}
