package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndpointConversions(t *testing.T) {
	ep, err := NewEndpoint(net.ParseIP("192.168.1.164"), 1699)
	require.NoError(t, err)

	assert.Equal(t, uint32(0xC0A801A4), ep.Host)
	assert.Equal(t, "192.168.1.164:1699", ep.String())
	assert.Equal(t, "192.168.1.164", ep.IP().String())

	addr := ep.UDPAddr()
	assert.Equal(t, 1699, addr.Port)

	back, err := EndpointFromUDPAddr(addr)
	require.NoError(t, err)
	assert.Equal(t, ep, back)

	_, err = NewEndpoint(net.ParseIP("::1"), 1699)
	assert.Error(t, err)
	_, err = EndpointFromUDPAddr(nil)
	assert.Error(t, err)
}

func TestEndpointJSON(t *testing.T) {
	b, err := json.Marshal(Endpoint{Host: 0x0A000002, Port: 4000})
	require.NoError(t, err)
	assert.JSONEq(t, `{"host":"10.0.0.2","port":4000}`, string(b))
}

func TestOpcodeString(t *testing.T) {
	assert.Equal(t, "ping", OpPing.String())
	assert.Equal(t, "pong", OpPong.String())
	assert.Equal(t, "data", OpData.String())
	assert.Equal(t, "unknown(7)", Opcode(7).String())
	assert.Equal(t, Opcode(2), OpData)
}

func TestBroadcastReportString(t *testing.T) {
	r := BroadcastReport{Attempted: 3, Delivered: 2, Evicted: []Endpoint{{Host: 1}}}
	assert.Equal(t, "Broadcast(delivered=2/3, evicted=1)", r.String())
}

func TestNetworkErrorIs(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewError(ErrCodeSendFailure, "sending to 10.0.0.2:1699", cause)

	assert.ErrorIs(t, err, ErrSendFailure)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrBindFailure)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, err.Error(), fmt.Sprint(ErrCodeSendFailure))

	wrapped := fmt.Errorf("broadcast: %w", err)
	assert.ErrorIs(t, wrapped, ErrSendFailure)

	var netErr NetworkError
	require.True(t, errors.As(wrapped, &netErr))
	assert.Equal(t, ErrCodeSendFailure, netErr.Code)
}

func TestParseListenAddr(t *testing.T) {
	tests := []struct {
		name     string
		addr     string
		expected string
		wantErr  bool
	}{
		{name: "Multiaddr", addr: "/ip4/192.168.1.164/udp/1699", expected: "192.168.1.164:1699"},
		{name: "Host and port", addr: "10.0.0.1:4000", expected: "10.0.0.1:4000"},
		{name: "TCP multiaddr", addr: "/ip4/10.0.0.1/tcp/1699", wantErr: true},
		{name: "IPv6 multiaddr", addr: "/ip6/::1/udp/1699", wantErr: true},
		{name: "Unspecified host", addr: "0.0.0.0:1699", wantErr: true},
		{name: "Zero port", addr: "/ip4/10.0.0.1/udp/0", wantErr: true},
		{name: "Hostname", addr: "localhost:1699", wantErr: true},
		{name: "Garbage", addr: "not an address", wantErr: true},
		{name: "Bad multiaddr", addr: "/ip4/999.1.1.1/udp/1699", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, err := ParseListenAddr(tt.addr)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, ep.String())
		})
	}
}
