package vectorstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestPayloadRoundTrip(t *testing.T) {
	p := Payload{
		RepoID:          "abc123def456",
		Path:            "internal/server/handler.go",
		StartLine:       10,
		EndLine:         42,
		Language:        "go",
		Name:            "HandleRequest",
		Kind:            "method_declaration",
		Text:            "func (s *Server) HandleRequest() {}",
		FileFingerprint: "deadbeef",
	}

	values := encodePayload("chunk-id-1", p)
	assert.Equal(t, "chunk-id-1", values["id"].GetStringValue())

	decoded := decodePayload(values)
	assert.Equal(t, p, decoded)
}

func TestDecodePayloadMissingFields(t *testing.T) {
	decoded := decodePayload(encodePayload("x", Payload{Path: "a.go"}))
	assert.Equal(t, "a.go", decoded.Path)
	assert.Zero(t, decoded.StartLine)
	assert.Empty(t, decoded.Name)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(status.Error(grpccodes.Unavailable, "down")))
	assert.True(t, isTransient(status.Error(grpccodes.DeadlineExceeded, "slow")))
	assert.True(t, isTransient(status.Error(grpccodes.ResourceExhausted, "quota")))

	assert.False(t, isTransient(status.Error(grpccodes.InvalidArgument, "bad")))
	assert.False(t, isTransient(status.Error(grpccodes.NotFound, "missing")))
	assert.False(t, isTransient(errors.New("plain error")))
}
