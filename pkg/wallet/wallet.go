// Package wallet stores the X.509 identities the gateway uses to sign ledger
// transactions. Identities are serialized in the same JSON layout as the
// Fabric Node SDK file-system wallet so existing wallets can be reused.
package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
)

const TypeX509 = "X.509"

// ErrNotFound is returned by Store.Get when no identity has the label.
var ErrNotFound = errors.New("identity not found")

// Identity is an enrolled ledger identity.
type Identity struct {
	Credentials Credentials `json:"credentials"`
	MSPID       string      `json:"mspId"`
	Type        string      `json:"type"`
	Version     int         `json:"version"`
}

// Credentials holds PEM-encoded certificate and private key.
type Credentials struct {
	Certificate string `json:"certificate"`
	PrivateKey  string `json:"privateKey"`
}

// Store looks up identities by label.
type Store interface {
	Get(label string) (*Identity, error)
	Put(label string, id *Identity) error
	List() ([]string, error)
}

// NewX509 builds an identity from PEM material.
func NewX509(mspID string, certPEM, keyPEM []byte) *Identity {
	return &Identity{
		Credentials: Credentials{
			Certificate: string(certPEM),
			PrivateKey:  string(keyPEM),
		},
		MSPID:   mspID,
		Type:    TypeX509,
		Version: 1,
	}
}

func (id *Identity) Validate() error {
	if id.MSPID == "" {
		return errors.New("identity: missing mspId")
	}
	if id.Type != "" && id.Type != TypeX509 {
		return fmt.Errorf("identity: unsupported type %q", id.Type)
	}
	if id.Credentials.Certificate == "" || id.Credentials.PrivateKey == "" {
		return errors.New("identity: missing certificate or private key")
	}
	return nil
}

// Encode and Decode are shared by every Store backend.
func Encode(id *Identity) ([]byte, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(id)
}

func Decode(data []byte) (*Identity, error) {
	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("decode identity: %w", err)
	}
	if err := id.Validate(); err != nil {
		return nil, err
	}
	return &id, nil
}
