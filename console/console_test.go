package console

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sealane/nmeagate/coupler"
	"github.com/sealane/nmeagate/router"
	"github.com/sealane/nmeagate/socketcan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServer_pushesSnapshotOnConnect(t *testing.T) {
	r := router.New(router.DefaultRetryPolicy, nil)
	r.AddCoupler(coupler.NewSocketCANCoupler("can0", "vcan-test", socketcan.Config{}))

	s := New(r, time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(s.Handler))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var status ServerStatus
	require.NoError(t, json.Unmarshal(payload, &status))
	require.Len(t, status.Couplers, 1)
	assert.Equal(t, "can0", status.Couplers[0].Name)
	assert.Equal(t, "socketcan", status.Couplers[0].Class)
	assert.Equal(t, "NOT_READY", status.Couplers[0].DevState)
}

func TestDevState_mapsKnownStatuses(t *testing.T) {
	assert.Equal(t, "OPEN", devState(coupler.Open))
	assert.Equal(t, "CONNECTED", devState(coupler.Connected))
	assert.Equal(t, "ACTIVE", devState(coupler.Active))
	assert.Equal(t, "NOT_READY", devState(coupler.Failed))
	assert.Equal(t, "NOT_READY", devState(coupler.Stopped))
}
