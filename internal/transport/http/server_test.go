package httptransport

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	handler := http.NotFoundHandler()
	srv := NewServer(DefaultServerConfig(":9090"), handler)

	require.Equal(t, ":9090", srv.Addr)
	require.Equal(t, 10*time.Second, srv.ReadTimeout)
	require.Equal(t, 2*time.Minute, srv.WriteTimeout)
	require.NotNil(t, srv.Handler)
}
