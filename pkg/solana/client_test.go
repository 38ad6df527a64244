package solana

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ybbus/jsonrpc"
)

func TestSignatureStatus(t *testing.T) {
	zero, one := 0, 1

	testCases := []struct {
		s         SignatureStatus
		confirmed bool
		finalized bool
	}{
		{
			s: SignatureStatus{
				Slot:               10,
				ErrorResult:        nil,
				Confirmations:      &zero,
				ConfirmationStatus: "",
			},
		},
		{
			s: SignatureStatus{
				Slot:               10,
				ErrorResult:        nil,
				Confirmations:      &zero,
				ConfirmationStatus: "random",
			},
		},
		{
			s: SignatureStatus{
				Slot:               10,
				ErrorResult:        nil,
				Confirmations:      &zero,
				ConfirmationStatus: confirmationStatusProcessed,
			},
		},
		{
			s: SignatureStatus{
				Slot:               10,
				ErrorResult:        nil,
				Confirmations:      &one,
				ConfirmationStatus: "",
			},
			confirmed: true,
		},
		{
			s: SignatureStatus{
				Slot:               10,
				ErrorResult:        nil,
				Confirmations:      &zero,
				ConfirmationStatus: confirmationStatusConfirmed,
			},
			confirmed: true,
		},
		{
			s: SignatureStatus{
				Slot:               10,
				ErrorResult:        nil,
				Confirmations:      &zero,
				ConfirmationStatus: confirmationStatusFinalized,
			},
			confirmed: true,
			finalized: true,
		},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.confirmed, tc.s.Confirmed())
		assert.Equal(t, tc.finalized, tc.s.Finalized())
	}
}

func newTestRPCServer(t *testing.T, handler func(method string, params []interface{}) (interface{}, *jsonrpc.RPCError)) Client {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int           `json:"id"`
			Method string        `json:"method"`
			Params []interface{} `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		result, rpcErr := handler(req.Method, req.Params)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
		}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(server.Close)

	return New(server.URL)
}

func TestClient_GetAccountInfo(t *testing.T) {
	owner, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	account, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	data := []byte{1, 2, 3, 4}
	client := newTestRPCServer(t, func(method string, params []interface{}) (interface{}, *jsonrpc.RPCError) {
		require.Equal(t, "getAccountInfo", method)

		if params[0] != base58.Encode(account) {
			return map[string]interface{}{"value": nil}, nil
		}
		return map[string]interface{}{
			"value": map[string]interface{}{
				"lamports":   1234,
				"owner":      base58.Encode(owner),
				"data":       []string{base64.StdEncoding.EncodeToString(data), "base64"},
				"executable": false,
			},
		}, nil
	})

	info, err := client.GetAccountInfo(account, CommitmentFinalized)
	require.NoError(t, err)
	assert.EqualValues(t, 1234, info.Lamports)
	assert.EqualValues(t, owner, info.Owner)
	assert.Equal(t, data, info.Data)
	assert.False(t, info.Executable)

	_, err = client.GetAccountInfo(owner, CommitmentFinalized)
	assert.Equal(t, ErrNoAccountInfo, err)
}

func TestClient_GetFilteredProgramAccounts(t *testing.T) {
	program, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	filterValue := []byte("filter")
	client := newTestRPCServer(t, func(method string, params []interface{}) (interface{}, *jsonrpc.RPCError) {
		require.Equal(t, "getProgramAccounts", method)
		require.Equal(t, base58.Encode(program), params[0])

		config := params[1].(map[string]interface{})
		filters := config["filters"].([]interface{})
		memcmp := filters[0].(map[string]interface{})["memcmp"].(map[string]interface{})
		assert.EqualValues(t, 8, memcmp["offset"])
		assert.Equal(t, base58.Encode(filterValue), memcmp["bytes"])

		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 99},
			"value": []map[string]interface{}{
				{"pubkey": "a"},
				{"pubkey": "b"},
			},
		}, nil
	})

	addresses, slot, err := client.GetFilteredProgramAccounts(program, 8, filterValue)
	require.NoError(t, err)
	assert.EqualValues(t, 99, slot)
	assert.Equal(t, []string{"a", "b"}, addresses)
}

func TestClient_SubmitTransaction_InstructionError(t *testing.T) {
	payer, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	program, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	client := newTestRPCServer(t, func(method string, params []interface{}) (interface{}, *jsonrpc.RPCError) {
		require.Equal(t, "sendTransaction", method)
		return nil, &jsonrpc.RPCError{
			Code:    -32002,
			Message: "Transaction simulation failed",
			Data: map[string]interface{}{
				"err": map[string]interface{}{
					"InstructionError": []interface{}{0, "InvalidAccountOwner"},
				},
			},
		}
	})

	tx := NewTransaction(payer, NewInstruction(program, []byte{1}))
	_, err = client.SubmitTransaction(tx, CommitmentFinalized)
	require.Error(t, err)
	assert.True(t, IsInstructionError(err, ErrInvalidAccountOwner))
}
