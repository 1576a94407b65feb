package nats

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkwell-books/storefront-messaging/pkg/logger"
)

func applied(t *testing.T, cfg Config) nats.Options {
	t.Helper()
	opts, err := connectOptions(cfg, logger.NewNop())
	require.NoError(t, err)

	o := nats.GetDefaultOptions()
	for _, opt := range opts {
		require.NoError(t, opt(&o))
	}
	return o
}

func TestConnectOptionsDefaults(t *testing.T) {
	o := applied(t, Config{URL: "nats://localhost:4222", MaxReconnects: -1})

	assert.Equal(t, "storefront-messaging", o.Name)
	assert.Equal(t, -1, o.MaxReconnect)
	assert.Equal(t, 2*time.Second, o.ReconnectWait)
	assert.Equal(t, reconnectBufSize, o.ReconnectBufSize)
	assert.Empty(t, o.Token)
	assert.Nil(t, o.TLSConfig)
}

func TestConnectOptionsFromConfig(t *testing.T) {
	o := applied(t, Config{Token: "s3cret", ReconnectWait: 5 * time.Second, MaxReconnects: 10})

	assert.Equal(t, 10, o.MaxReconnect)
	assert.Equal(t, 5*time.Second, o.ReconnectWait)
	assert.Equal(t, "s3cret", o.Token)
}

func TestConnectOptionsRejectsMissingCertificates(t *testing.T) {
	_, err := connectOptions(Config{CAFile: "/missing/ca.pem", CertFile: "/missing/c.pem", KeyFile: "/missing/k.pem"}, logger.NewNop())
	assert.Error(t, err)
}
