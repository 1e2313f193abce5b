package guestws

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func brokerReturning(resp BrokerResponse, err error) SessionBrokerGetter {
	return func(context.Context, string) (BrokerResponse, error) {
		return resp, err
	}
}

func TestSessionBrokerRepo_Connect(t *testing.T) {
	var asked string
	repo := NewSessionBrokerRepo(newTestLogger(io.Discard), func(_ context.Context, identity string) (BrokerResponse, error) {
		asked = identity
		return BrokerResponse{
			Success:  true,
			WsURL:    "wss://chat.example.com/cable",
			WsToken:  "tok",
			UserID:   "42",
			UserType: "guest",
		}, nil
	})

	descriptor, err := repo.Connect(context.Background(), "guest-1")

	require.NoError(t, err)
	assert.Equal(t, "guest-1", asked)
	assert.Equal(t, ConnectionDescriptor{
		EndpointURL:  "wss://chat.example.com/cable",
		AccessToken:  "tok",
		IdentityID:   "42",
		IdentityRole: "guest",
	}, descriptor)
}

func TestSessionBrokerRepo_Refusal(t *testing.T) {
	tests := []struct {
		name    string
		resp    BrokerResponse
		message string
	}{
		{
			name:    "broker message is surfaced",
			resp:    BrokerResponse{Success: false, Message: "guest not found"},
			message: "guest not found",
		},
		{
			name:    "generic message when broker gives none",
			resp:    BrokerResponse{Success: false},
			message: "failed to obtain connection info",
		},
		{
			name:    "success without endpoint",
			resp:    BrokerResponse{Success: true},
			message: "broker returned no endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := NewSessionBrokerRepo(newTestLogger(io.Discard), brokerReturning(tt.resp, nil))

			_, err := repo.Connect(context.Background(), "guest-1")

			var brokerErr BrokerError
			require.True(t, errors.As(err, &brokerErr), "have %v", err)
			assert.Equal(t, tt.message, brokerErr.Message)
		})
	}
}

func TestSessionBrokerRepo_TransportFailure(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	repo := NewSessionBrokerRepo(newTestLogger(io.Discard), brokerReturning(BrokerResponse{}, cause))

	_, err := repo.Connect(context.Background(), "guest-1")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "fetch connection descriptor")
}

func TestBrokerResponse_FlexibleUserID(t *testing.T) {
	for raw, want := range map[string]string{
		`{"userId":"abc"}`: "abc",
		`{"userId":42}`:    "42",
		`{"userId":null}`:  "",
		`{}`:               "",
	} {
		var resp BrokerResponse
		require.NoError(t, json.Unmarshal([]byte(raw), &resp), raw)
		assert.Equal(t, want, string(resp.UserID), raw)
	}

	var resp BrokerResponse
	assert.Error(t, json.Unmarshal([]byte(`{"userId":true}`), &resp))
}
