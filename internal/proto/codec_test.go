package proto

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestCodecRegistered(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)
	assert.Equal(t, CodecName, c.Name())
}

func TestCodec_PlainMessages(t *testing.T) {
	in := &LoginResponse{
		AccessToken:  "a",
		RefreshToken: "r",
		ExpiresIn:    3600,
		User:         &User{Id: "u1", Email: "alice@example.com", IsActive: true},
	}

	b, err := Codec{}.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"expires_in":3600`)
	assert.Contains(t, string(b), `"first_name":""`)
	assert.NotContains(t, string(b), "last_login_at")

	out := &LoginResponse{}
	require.NoError(t, Codec{}.Unmarshal(b, out))
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCodec_EmptyBody(t *testing.T) {
	out := &LogoutRequest{}
	assert.NoError(t, Codec{}.Unmarshal(nil, out))
}

func TestCodec_Errors(t *testing.T) {
	assert.Error(t, Codec{}.Unmarshal([]byte("{"), &SignUpRequest{}))
	_, err := Codec{}.Marshal(make(chan int))
	assert.Error(t, err)
}

func TestCodec_ProtoMessages(t *testing.T) {
	in := &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}

	b, err := Codec{}.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(b), "SERVING")

	out := &healthpb.HealthCheckResponse{}
	require.NoError(t, Codec{}.Unmarshal(b, out))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, out.GetStatus())
}

func TestGetters_NilSafe(t *testing.T) {
	var u *User
	assert.Empty(t, u.GetId())
	var v *ValidateTokenResponse
	assert.False(t, v.GetValid())
	assert.Nil(t, v.GetUser())
}
