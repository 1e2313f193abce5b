package guestws

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/pkg/errors"
)

const defaultBrokerRejection = "failed to obtain connection info"

type (
	// BrokerResponse is what the session broker answers to a connect request.
	BrokerResponse struct {
		Success  bool           `json:"success"`
		Message  string         `json:"message"`
		WsURL    string         `json:"wsUrl"`
		WsToken  string         `json:"wsToken"`
		UserID   FlexibleString `json:"userId"`
		UserType string         `json:"userType"`
	}

	// ConnectionDescriptor is the broker-issued bundle for one connection attempt. It is
	// fetched again on every attempt and never cached.
	ConnectionDescriptor struct {
		EndpointURL  string
		AccessToken  string
		IdentityID   string
		IdentityRole string
	}

	SessionBroker interface {
		Connect(ctx context.Context, identity string) (ConnectionDescriptor, error)
	}

	SessionBrokerGetter func(ctx context.Context, identity string) (BrokerResponse, error)

	// SessionBrokerRepo turns raw broker answers into descriptors or errors.
	SessionBrokerRepo struct {
		logger Logger
		getter SessionBrokerGetter
	}
)

func NewSessionBrokerRepo(
	logger Logger,
	getter SessionBrokerGetter,
) SessionBrokerRepo {
	return SessionBrokerRepo{getter: getter, logger: logger.WithField("component", "session_broker")}
}

func (r SessionBrokerRepo) Connect(ctx context.Context, identity string) (ConnectionDescriptor, error) {
	resp, err := r.getter(ctx, identity)
	if err != nil {
		r.logger.Errorf("cannot fetch connection descriptor for %s: %s", identity, err)
		return ConnectionDescriptor{}, errors.Wrap(err, "fetch connection descriptor")
	}

	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = defaultBrokerRejection
		}
		r.logger.Warnf("broker refused %s: %s", identity, msg)
		return ConnectionDescriptor{}, BrokerError{Message: msg}
	}

	if resp.WsURL == "" {
		return ConnectionDescriptor{}, BrokerError{Message: "broker returned no endpoint"}
	}

	if _, err := url.Parse(resp.WsURL); err != nil {
		return ConnectionDescriptor{}, errors.Wrapf(ErrCannotConnect, "invalid endpoint %q: %s", resp.WsURL, err)
	}

	return resp.Descriptor(), nil
}

func (b BrokerResponse) Descriptor() ConnectionDescriptor {
	return ConnectionDescriptor{
		EndpointURL:  b.WsURL,
		AccessToken:  b.WsToken,
		IdentityID:   string(b.UserID),
		IdentityRole: b.UserType,
	}
}

// FlexibleString accepts both JSON strings and numbers. Broker deployments disagree on
// how user ids are encoded.
type FlexibleString string

func (s *FlexibleString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = FlexibleString(str)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return err
	}
	*s = FlexibleString(n.String())
	return nil
}
